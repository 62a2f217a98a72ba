package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand handles the "migrate" subcommand against the database
// at dbPath, writing progress to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		return printVersion(out, database, migrations)
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		return printVersion(out, database, migrations)
	case "status":
		return printVersion(out, database, migrations)
	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: vrcore migrate %s <version_number>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "force" {
			err = database.MigrateForce(migrations, v)
		} else {
			err = database.MigrateTo(migrations, uint(v))
		}
		if err != nil {
			return err
		}
		return printVersion(out, database, migrations)
	case "help":
		PrintMigrateHelp(out)
		return nil
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printVersion(out io.Writer, database *DB, migrations fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-way; inspect the database and run: vrcore migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: vrcore migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show the current schema version
  version <N>        Migrate up or down to version N
  force <N>          Record version N without running migrations (recovery only)
  help               Show this help
`)
}
