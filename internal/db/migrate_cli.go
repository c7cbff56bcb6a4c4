package db

import (
	"fmt"
	"io"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down or status.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("migrate: missing action")
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}
	// migrations manage the schema, so open without initialising it
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		version, _, err := database.MigrateVersion(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "schema at version %d\n", version)
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		version, _, err := database.MigrateVersion(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rolled back to version %d\n", version)
	case "status":
		version, dirty, err := database.MigrateVersion(migrations)
		if err != nil {
			return err
		}
		latest, err := LatestMigrationVersion(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "current version: %d\nlatest version:  %d\ndirty:           %v\n", version, latest, dirty)
	case "help":
		PrintMigrateHelp(out)
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", args[0])
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: lbl-compute migrate <action>

Actions:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  status   Show current and latest schema versions
  help     Show this help
`)
}
