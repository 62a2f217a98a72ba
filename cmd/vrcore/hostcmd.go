package main

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/banshee-data/vrcore/internal/host"
	"github.com/banshee-data/vrcore/internal/httputil"
	"github.com/banshee-data/vrcore/internal/version"
)

const maxCommandBytes = 4096

// handleHostEvents consumes the commands the bridge forwards to the
// application.
func handleHostEvents(ctx context.Context, events <-chan host.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-events:
			switch c := c.(type) {
			case host.Reorient:
				log.Printf("host: view reoriented")
			case host.ReturnToLauncher:
				log.Printf("host: return to launcher (platform UI %d, %s)", c.PlatformUIVersion, version.Version)
			default:
				log.Printf("host: unhandled event %s", c.Name())
			}
		}
	}
}

// hostCommandHandler accepts host command events over HTTP, in the same
// JSON form as the MQTT bridge.
func hostCommandHandler(bridge *host.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := bridge.Post(body); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
