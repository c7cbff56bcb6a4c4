package lbl

import (
	"fmt"
	"strings"

	"github.com/banshee-data/lbl/internal/config"
	"github.com/banshee-data/lbl/internal/units"
)

// Config holds every option the engine recognises. Velocities are in m/s.
type Config struct {
	HPWidth     float64 // High-pass width (default: 223 km/s)
	SplineOrder int     // Template spline degree (default: 5)

	UseNoiseModel    bool // Use the per-exposure RMS supplied by the caller (default: false)
	NoiseModelPoints int  // Noise estimator window spacing in pixels (default: 100)

	MaxIterations       int     // Iteration budget per exposure (default: 10)
	MinPixWidth         int     // Narrower lines are excluded (default: 5)
	NSigThreshold       float64 // Lines with |dv/dvrms| above this are not averaged (default: 8)
	ConvergenceFraction float64 // Stop once |update| < fraction*bulk error (default: 0.2)
	MaxGoodIterations   int     // Fits using this many iterations are not converged (default: 8)

	CCFMinRV       float64 // Lower CCF bound (default: -300 km/s)
	CCFMaxRV       float64 // Upper CCF bound, exclusive (default: 300 km/s)
	CCFStepRV      float64 // CCF step (default: 500 m/s)
	CCFEWidthGuess float64 // Gaussian width seed (default: 2 km/s)

	ObjectScience      string
	CalibrationObjects []string // Objects seeded from the archive instead of the CCF (default: FP)

	// Odd-ratio mean parameters, not user tunable.
	OddRatio      float64
	OddRatioIters int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyLBLConfig())
}

// ConfigFromTuning builds a Config from a loaded LBLConfig.
func ConfigFromTuning(cfg *config.LBLConfig) Config {
	return Config{
		HPWidth:             units.ToMPS(cfg.GetHPWidthKms(), units.KMPS),
		SplineOrder:         cfg.GetSplineOrder(),
		UseNoiseModel:       cfg.GetUseNoiseModel(),
		NoiseModelPoints:    cfg.GetNoiseModelPoints(),
		MaxIterations:       cfg.GetComputeRVNIterations(),
		MinPixWidth:         cfg.GetComputeLineMinPixWidth(),
		NSigThreshold:       cfg.GetComputeLineNSigThres(),
		ConvergenceFraction: cfg.GetComputeRVBulkErrorConvergence(),
		MaxGoodIterations:   cfg.GetComputeRVMaxNGoodIters(),
		CCFMinRV:            cfg.GetRoughCCFMinRV(),
		CCFMaxRV:            cfg.GetRoughCCFMaxRV(),
		CCFStepRV:           cfg.GetRoughCCFRVStep(),
		CCFEWidthGuess:      cfg.GetRoughCCFEWidthGuess(),
		ObjectScience:       cfg.GetObjectScience(),
		CalibrationObjects:  cfg.GetCalibrationObjects(),
		OddRatio:            1e-4,
		OddRatioIters:       10,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.HPWidth <= 0 {
		return fmt.Errorf("HPWidth must be positive, got %f", c.HPWidth)
	}
	if c.SplineOrder < 1 {
		return fmt.Errorf("SplineOrder must be >= 1, got %d", c.SplineOrder)
	}
	if c.NoiseModelPoints < 1 {
		return fmt.Errorf("NoiseModelPoints must be positive, got %d", c.NoiseModelPoints)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MaxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.MinPixWidth < 1 {
		return fmt.Errorf("MinPixWidth must be positive, got %d", c.MinPixWidth)
	}
	if c.NSigThreshold <= 0 {
		return fmt.Errorf("NSigThreshold must be positive, got %f", c.NSigThreshold)
	}
	if c.ConvergenceFraction <= 0 {
		return fmt.Errorf("ConvergenceFraction must be positive, got %f", c.ConvergenceFraction)
	}
	if c.MaxGoodIterations < 1 {
		return fmt.Errorf("MaxGoodIterations must be positive, got %d", c.MaxGoodIterations)
	}
	if c.CCFStepRV <= 0 {
		return fmt.Errorf("CCFStepRV must be positive, got %f", c.CCFStepRV)
	}
	if c.CCFMinRV >= c.CCFMaxRV {
		return fmt.Errorf("CCFMinRV (%f) must be below CCFMaxRV (%f)", c.CCFMinRV, c.CCFMaxRV)
	}
	if c.CCFEWidthGuess <= 0 {
		return fmt.Errorf("CCFEWidthGuess must be positive, got %f", c.CCFEWidthGuess)
	}
	if c.OddRatio <= 0 || c.OddRatioIters < 1 {
		return fmt.Errorf("odd-ratio parameters must be positive, got %g/%d", c.OddRatio, c.OddRatioIters)
	}
	return nil
}

// IsCalibration reports whether object names a non-stellar calibration
// source, which is seeded from the archive rather than the CCF.
func (c Config) IsCalibration(object string) bool {
	for _, cal := range c.CalibrationObjects {
		if cal != "" && strings.Contains(object, cal) {
			return true
		}
	}
	return false
}
