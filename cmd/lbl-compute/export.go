package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/lbl/internal/db"
	"github.com/banshee-data/lbl/internal/fsutil"
	"github.com/banshee-data/lbl/internal/timeutil"
)

var exportHeader = []string{
	"exposure", "status", "mjd", "obs_time", "vrad", "svrad", "systemic_velocity", "berv",
	"seed_source", "iterations", "ccf_ewidth", "rms_ratio", "skip_reason",
}

// exportCSV writes one row per exposure. vrad is the barycentric velocity
// and svrad its bulk error, both m/s; missing values are left empty.
func exportCSV(fsys fsutil.FileSystem, path string, records []db.ExposureRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Exposure,
			r.Status,
			formatFloat(r.MJD, 6),
			obsTime(r.MJD),
			formatFloat(r.Velocity(), 3),
			formatFloat(r.BulkError, 3),
			formatFloat(r.SystemicVelocity, 3),
			formatFloat(r.BERV, 3),
			r.SeedSource,
			strconv.Itoa(r.Iterations),
			formatFloat(r.CCFEWidth, 1),
			formatFloat(r.RMSRatio, 4),
			r.SkipReason,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write export row %s: %w", r.Exposure, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func obsTime(mjd float64) string {
	if math.IsNaN(mjd) || math.IsInf(mjd, 0) {
		return ""
	}
	return timeutil.FromMJD(mjd).Format(time.RFC3339)
}
