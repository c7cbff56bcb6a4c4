package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/lbl/internal/db"
	"github.com/banshee-data/lbl/internal/version"
)

const defaultDBFile = "lbl.db"

var (
	manifestPath = flag.String("manifest", "", "Run manifest (YAML) naming the template, mask and exposures")
	dbPath       = flag.String("db", defaultDBFile, "SQLite database for reference tables and results")
	configPath   = flag.String("config", "", "LBL tuning JSON (overrides the manifest's config)")
	exportPath   = flag.String("export", "", "Write the run's velocities to this CSV file")
	quiet        = flag.Bool("quiet", false, "Suppress per-exposure progress logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lbl-compute"))
		return
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}
	if *manifestPath == "" {
		log.Fatal("-manifest is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ManifestPath: *manifestPath,
		DBPath:       *dbPath,
		ConfigPath:   *configPath,
		ExportPath:   *exportPath,
		Quiet:        *quiet,
	}
	if err := compute(ctx, opts); err != nil {
		log.Fatalf("compute: %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `lbl-compute - line-by-line radial velocities for one object

Usage:
  lbl-compute -manifest run.yaml [options]
  lbl-compute [-db path] migrate <up|down|status|help>

Options:
`)
	flag.PrintDefaults()
}
