package lbl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/lbl/internal/monitoring"
)

// RunInput describes one object's compute run.
type RunInput struct {
	RunID        string
	TemplatePath string
	MaskPath     string
	// TemplateVelocity is the systemic velocity of the template (m/s).
	TemplateVelocity float64
	Exposures        []string
	// Blaze is shared by every exposure; nil means unity.
	Blaze [][]float64
	// RMS maps exposure path to its external noise model, used when
	// Config.UseNoiseModel is set. Exposure.RMS is the fallback.
	RMS map[string][][]float64
}

// RunSummary lists what happened to each exposure.
type RunSummary struct {
	Results []*Result
	Skipped []string
}

// Runner drives the sequential compute pipeline for one object.
type Runner struct {
	Config     Config
	Instrument Instrument
	// Tables and Results are optional persistence collaborators.
	Tables  ReferenceTableStore
	Results ResultSink
	Logf    monitoring.Logf
}

// ReferenceTableKey names the stored table of a (template, mask) pair.
func ReferenceTableKey(templatePath, maskPath string) string {
	return filepath.Base(templatePath) + "|" + filepath.Base(maskPath)
}

// Run builds the template splines and reference table once, then fits the
// exposures in order. Exposures whose CCF bootstrap fails are recorded as
// skipped and the next exposure bootstraps again; any other error aborts
// the run. Exposures are processed strictly in order because each one may
// be seeded from the archive written by the previous ones.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunSummary, error) {
	logf := r.Logf.With("Runner")
	if r.Instrument == nil {
		return nil, fmt.Errorf("runner: nil instrument")
	}
	if len(in.Exposures) == 0 {
		return nil, fmt.Errorf("runner: no exposures")
	}

	tmpl, err := r.Instrument.LoadTemplate(in.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", in.TemplatePath, err)
	}
	splines, err := BuildTemplateSplines(tmpl, in.TemplateVelocity, r.Config, r.Logf)
	if err != nil {
		return nil, fmt.Errorf("template splines: %w", err)
	}

	mask, err := r.Instrument.LoadMask(in.MaskPath)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", in.MaskPath, err)
	}
	first, err := r.Instrument.LoadExposure(in.Exposures[0])
	if err != nil {
		return nil, fmt.Errorf("load exposure %s: %w", in.Exposures[0], err)
	}
	firstWave, err := r.Instrument.WaveSolution(first)
	if err != nil {
		return nil, fmt.Errorf("wave solution %s: %w", in.Exposures[0], err)
	}
	table, _, err := LoadOrBuildReferenceTable(r.Tables, ReferenceTableKey(in.TemplatePath, in.MaskPath), mask, firstWave, r.Logf)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(r.Config, splines, table, r.Logf)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	archive := NewRunningArchive()
	reset := true
	var ccfEWidth float64
	for i, path := range in.Exposures {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		exp := first
		if i > 0 {
			if exp, err = r.Instrument.LoadExposure(path); err != nil {
				return summary, fmt.Errorf("load exposure %s: %w", path, err)
			}
		}
		wave, err := r.Instrument.WaveSolution(exp)
		if err != nil {
			return summary, fmt.Errorf("wave solution %s: %w", path, err)
		}
		berv, err := r.Instrument.BERV(exp.Header)
		if err != nil {
			return summary, fmt.Errorf("berv %s: %w", path, err)
		}

		rms := in.RMS[path]
		if rms == nil {
			rms = exp.RMS
		}

		logf("[%d/%d] %s (%s)", i+1, len(in.Exposures), exp.Name, exp.Object)
		res, err := engine.ComputeRV(ExposureInput{
			Name:        exp.Name,
			Flux:        exp.Flux,
			Wave:        wave,
			Blaze:       in.Blaze,
			RMS:         rms,
			BERV:        berv,
			MJD:         exp.MJD,
			Calibration: r.Config.IsCalibration(exp.Object),
			Reset:       reset,
			CCFEWidth:   ccfEWidth,
		}, archive)

		var fitErr *FitConvergenceError
		if errors.As(err, &fitErr) {
			logf("skipping %s: %v", exp.Name, err)
			summary.Skipped = append(summary.Skipped, path)
			if r.Results != nil {
				if serr := r.Results.SaveSkipped(in.RunID, exp.Name, err.Error()); serr != nil {
					return summary, fmt.Errorf("save skipped %s: %w", path, serr)
				}
			}
			reset = true
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("compute rv %s: %w", path, err)
		}

		reset = res.ResetNext
		ccfEWidth = res.CCFEWidth
		summary.Results = append(summary.Results, res)
		logf("%s: rv %.2f +/- %.2f m/s, %s in %d iterations",
			exp.Name, res.SystemicVelocity-res.BERV, res.BulkError, res.State, res.Iterations)
		if r.Results != nil {
			if err := r.Results.SaveResult(in.RunID, exp.Name, res); err != nil {
				return summary, fmt.Errorf("save result %s: %w", path, err)
			}
		}
	}
	return summary, nil
}
