// Command pacing-plot renders recorded frame pacing from the vrcore
// database to an image.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/monitor"
	"github.com/banshee-data/vrcore/internal/security"
)

func main() {
	dbPath := flag.String("db-path", "vrcore.db", "path to the vrcore database")
	limit := flag.Int("n", 5000, "number of most recent ticks to plot")
	output := flag.String("o", "pacing.png", "output path (.png, .svg or .pdf)")
	flag.Parse()

	if err := security.ValidateOutputPath(*output); err != nil {
		log.Fatalf("invalid output: %v", err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	samples, err := database.RecentPacing(context.Background(), *limit)
	if err != nil {
		log.Fatalf("failed to read pacing: %v", err)
	}
	if err := monitor.PlotPacing(samples, *output); err != nil {
		log.Fatalf("plot: %v", err)
	}
	if p95, ok := monitor.LatencyQuantile(samples, 0.95); ok {
		log.Printf("%d ticks, p95 latency %.2f ms", len(samples), p95)
	}
	log.Printf("wrote %s", *output)
}
