package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lbl/internal/lbl"
)

// StatusSkipped marks an exposure that could not be fitted; fitted
// exposures store their lbl.FitState name.
const StatusSkipped = "skipped"

var (
	_ lbl.ResultSink          = (*DB)(nil)
	_ lbl.ReferenceTableStore = (*DB)(nil)
)

// Run is one compute run of an object against a (template, mask) pair.
type Run struct {
	RunID         string
	ObjectScience string
	TemplatePath  string
	MaskPath      string
	TableKey      string
	ConfigJSON    string
	StartedUnix   float64
}

// ExposureRecord is the stored outcome of one exposure.
type ExposureRecord struct {
	RunID      string
	Exposure   string
	Status     string // lbl.FitState name or StatusSkipped
	SkipReason string

	MJD              float64
	BERV             float64
	SystemicVelocity float64
	InitialVelocity  float64
	SeedSource       string
	BulkError        float64
	RMSRatio         float64
	CCFEWidth        float64
	HPWidth          float64
	Iterations       int
	ResetNext        bool
	DurationMs       float64
}

// Velocity is the barycentric velocity (systemic minus BERV), m/s.
func (r ExposureRecord) Velocity() float64 {
	return r.SystemicVelocity - r.BERV
}

// StartRun records a new run and returns its generated ID.
func (db *DB) StartRun(run Run) (string, error) {
	run.RunID = uuid.NewString()
	run.StartedUnix = db.now()
	if _, err := db.Exec(`INSERT INTO lbl_runs (
			run_id, object_science, template_path, mask_path, table_key, config_json, started_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ObjectScience, run.TemplatePath, run.MaskPath, run.TableKey, run.ConfigJSON, run.StartedUnix,
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.RunID, nil
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	var r Run
	err := db.QueryRow(`SELECT run_id, object_science, template_path, mask_path, table_key, config_json, started_unix
		FROM lbl_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.ObjectScience, &r.TemplatePath, &r.MaskPath, &r.TableKey, &r.ConfigJSON, &r.StartedUnix,
	)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &r, nil
}

// SaveResult stores an exposure's result and its per-line diagnostics,
// replacing any earlier record of the same exposure in the run.
func (db *DB) SaveResult(runID, exposure string, result *lbl.Result) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteExposure(tx, runID, exposure); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO exposure_results (
			run_id, exposure, status, mjd, berv, systemic_velocity, initial_velocity,
			seed_source, bulk_error, rms_ratio, ccf_ewidth, hp_width, iterations,
			reset_next, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, exposure, result.State.String(), nullFloat(result.MJD), nullFloat(result.BERV),
		nullFloat(result.SystemicVelocity), nullFloat(result.InitialVelocity), result.SeedSource,
		nullFloat(result.BulkError), nullFloat(result.RMSRatio), nullFloat(result.CCFEWidth),
		nullFloat(result.HPWidth), result.Iterations, result.ResetNext,
		float64(result.Duration)/float64(time.Millisecond),
	); err != nil {
		return fmt.Errorf("insert exposure result %s: %w", exposure, err)
	}

	if result.Table != nil {
		stmt, err := tx.Prepare(`INSERT INTO line_results (
				run_id, exposure, line_index, order_index, wave_start, wave_end, weight, xpix,
				status, status_iteration, npix, mean_xpix, mean_blaze, amp_continuum,
				rms_ratio, chi2, chi2_valid_cdf, dv, dvrms, ddv, ddvrms, dddv, dddvrms, rv
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare line insert: %w", err)
		}
		defer stmt.Close()
		for i, l := range result.Table.Lines {
			if _, err := stmt.Exec(
				runID, exposure, i, l.Order, l.WaveStart, l.WaveEnd, l.Weight, nullFloat(l.XPix),
				l.Status.Kind.String(), l.Status.Iteration, l.NPixLine,
				nullFloat(l.MeanXPix), nullFloat(l.MeanBlaze), nullFloat(l.AmpContinuum),
				nullFloat(l.RMSRatio), nullFloat(l.Chi2), nullFloat(l.Chi2ValidCDF),
				nullFloat(l.DV), nullFloat(l.DVRMS), nullFloat(l.DDV), nullFloat(l.DDVRMS),
				nullFloat(l.DDDV), nullFloat(l.DDDVRMS), nullFloat(l.RV),
			); err != nil {
				return fmt.Errorf("insert line %d of %s: %w", i, exposure, err)
			}
		}
	}
	return tx.Commit()
}

// SaveSkipped records an exposure that could not be fitted.
func (db *DB) SaveSkipped(runID, exposure, reason string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteExposure(tx, runID, exposure); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO exposure_results (run_id, exposure, status, skip_reason) VALUES (?, ?, ?, ?)`,
		runID, exposure, StatusSkipped, reason,
	); err != nil {
		return fmt.Errorf("insert skipped exposure %s: %w", exposure, err)
	}
	return tx.Commit()
}

func deleteExposure(tx *sql.Tx, runID, exposure string) error {
	if _, err := tx.Exec(`DELETE FROM line_results WHERE run_id = ? AND exposure = ?`, runID, exposure); err != nil {
		return fmt.Errorf("clear line results of %s: %w", exposure, err)
	}
	if _, err := tx.Exec(`DELETE FROM exposure_results WHERE run_id = ? AND exposure = ?`, runID, exposure); err != nil {
		return fmt.Errorf("clear exposure result %s: %w", exposure, err)
	}
	return nil
}

// ListResults returns the run's exposure records in the order they were
// saved.
func (db *DB) ListResults(runID string) ([]ExposureRecord, error) {
	rows, err := db.Query(`SELECT run_id, exposure, status, skip_reason, mjd, berv,
			systemic_velocity, initial_velocity, seed_source, bulk_error, rms_ratio,
			ccf_ewidth, hp_width, iterations, reset_next, duration_ms
		FROM exposure_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ExposureRecord
	for rows.Next() {
		var (
			r                                    ExposureRecord
			reason, seed                         sql.NullString
			mjd, berv, sys, initial, bulk, ratio sql.NullFloat64
			ewidth, hpWidth, duration            sql.NullFloat64
			iterations                           sql.NullInt64
			resetNext                            sql.NullBool
		)
		if err := rows.Scan(&r.RunID, &r.Exposure, &r.Status, &reason, &mjd, &berv,
			&sys, &initial, &seed, &bulk, &ratio, &ewidth, &hpWidth, &iterations, &resetNext, &duration,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.SkipReason = reason.String
		r.SeedSource = seed.String
		r.MJD, r.BERV = floatOrNaN(mjd), floatOrNaN(berv)
		r.SystemicVelocity, r.InitialVelocity = floatOrNaN(sys), floatOrNaN(initial)
		r.BulkError, r.RMSRatio = floatOrNaN(bulk), floatOrNaN(ratio)
		r.CCFEWidth, r.HPWidth = floatOrNaN(ewidth), floatOrNaN(hpWidth)
		r.DurationMs = floatOrNaN(duration)
		r.Iterations = int(iterations.Int64)
		r.ResetNext = resetNext.Bool
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadLineResults returns the per-line diagnostics of one exposure.
func (db *DB) LoadLineResults(runID, exposure string) ([]lbl.ReferenceLine, error) {
	rows, err := db.Query(`SELECT order_index, wave_start, wave_end, weight, xpix,
			status, status_iteration, npix, mean_xpix, mean_blaze, amp_continuum,
			rms_ratio, chi2, chi2_valid_cdf, dv, dvrms, ddv, ddvrms, dddv, dddvrms, rv
		FROM line_results WHERE run_id = ? AND exposure = ? ORDER BY line_index`, runID, exposure)
	if err != nil {
		return nil, fmt.Errorf("query line results of %s: %w", exposure, err)
	}
	defer rows.Close()

	var out []lbl.ReferenceLine
	for rows.Next() {
		var (
			l      lbl.ReferenceLine
			status string
			vals   [14]sql.NullFloat64
		)
		if err := rows.Scan(&l.Order, &l.WaveStart, &l.WaveEnd, &l.Weight, &vals[0],
			&status, &l.Status.Iteration, &l.NPixLine,
			&vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6],
			&vals[7], &vals[8], &vals[9], &vals[10], &vals[11], &vals[12], &vals[13],
		); err != nil {
			return nil, fmt.Errorf("scan line result: %w", err)
		}
		if l.Status.Kind, err = lbl.ParseLineStatusKind(status); err != nil {
			return nil, err
		}
		dst := []*float64{
			&l.XPix, &l.MeanXPix, &l.MeanBlaze, &l.AmpContinuum, &l.RMSRatio, &l.Chi2, &l.Chi2ValidCDF,
			&l.DV, &l.DVRMS, &l.DDV, &l.DDVRMS, &l.DDDV, &l.DDDVRMS, &l.RV,
		}
		for i, p := range dst {
			*p = floatOrNaN(vals[i])
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
