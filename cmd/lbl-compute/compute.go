package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/lbl/internal/config"
	"github.com/banshee-data/lbl/internal/db"
	"github.com/banshee-data/lbl/internal/fsutil"
	"github.com/banshee-data/lbl/internal/instrument"
	"github.com/banshee-data/lbl/internal/lbl"
	"github.com/banshee-data/lbl/internal/monitoring"
	"github.com/banshee-data/lbl/internal/security"
)

type options struct {
	ManifestPath string
	DBPath       string
	ConfigPath   string
	ExportPath   string
	Quiet        bool
}

// compute runs one manifest end to end: tuning, reference table, every
// exposure, then the optional CSV export.
func compute(ctx context.Context, opts options) error {
	if opts.ExportPath != "" {
		if err := security.ValidateOutputPath(opts.ExportPath); err != nil {
			return err
		}
	}

	fsys := fsutil.OSFileSystem{}
	m, err := instrument.LoadManifest(fsys, opts.ManifestPath)
	if err != nil {
		return err
	}
	tuning, err := loadTuning(opts.ConfigPath, m.Config)
	if err != nil {
		return err
	}
	cfg := lbl.ConfigFromTuning(tuning)
	if cfg.ObjectScience == "" {
		cfg.ObjectScience = m.Object
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tuningJSON, err := json.Marshal(tuning)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}

	database, err := db.NewDB(opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	runID, err := database.StartRun(db.Run{
		ObjectScience: cfg.ObjectScience,
		TemplatePath:  m.Template,
		MaskPath:      m.Mask,
		TableKey:      lbl.ReferenceTableKey(m.Template, m.Mask),
		ConfigJSON:    string(tuningJSON),
	})
	if err != nil {
		return err
	}

	inst := instrument.NewTabular(fsys)
	in, err := m.RunInput(inst, runID)
	if err != nil {
		return err
	}

	logf := monitoring.Default()
	if opts.Quiet {
		logf = monitoring.Discard()
	}
	runner := &lbl.Runner{
		Config:     cfg,
		Instrument: inst,
		Tables:     database,
		Results:    database,
		Logf:       logf,
	}

	start := time.Now()
	summary, err := runner.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	log.Printf("run %s: %d fitted, %d skipped in %s", runID, len(summary.Results), len(summary.Skipped),
		time.Since(start).Round(time.Millisecond))

	if opts.ExportPath == "" {
		return nil
	}
	records, err := database.ListResults(runID)
	if err != nil {
		return err
	}
	if err := exportCSV(fsys, opts.ExportPath, records); err != nil {
		return err
	}
	log.Printf("wrote %d rows to %s", len(records), opts.ExportPath)
	return nil
}

// loadTuning reads the tuning file named on the command line, else the
// one named by the manifest, else returns the built-in defaults.
func loadTuning(flagPath, manifestPath string) (*config.LBLConfig, error) {
	path := flagPath
	if path == "" {
		path = manifestPath
	}
	if path == "" {
		return config.DefaultLBLConfig(), nil
	}
	tuning, err := config.LoadLBLConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load tuning %s: %w", path, err)
	}
	return tuning, nil
}
