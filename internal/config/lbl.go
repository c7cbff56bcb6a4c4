package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical LBL defaults file.
// This is the single source of truth for all default values.
const DefaultConfigPath = "config/lbl.defaults.json"

// LBLConfig represents the root configuration of the line-by-line engine.
// All fields are optional; the Get* accessors return the built-in default
// for any field omitted from the JSON file.
type LBLConfig struct {
	// Template and science high-pass
	HPWidthKms  *float64 `json:"hp_width_kms,omitempty"`
	SplineOrder *int     `json:"spline_order,omitempty"`

	// Noise model
	UseNoiseModel    *bool `json:"use_noise_model,omitempty"`
	NoiseModelPoints *int  `json:"noise_model_points,omitempty"`

	// Iterative line fit
	ComputeRVNIterations          *int     `json:"compute_rv_n_iterations,omitempty"`
	ComputeLineMinPixWidth        *int     `json:"compute_line_min_pix_width,omitempty"`
	ComputeLineNSigThres          *float64 `json:"compute_line_nsig_thres,omitempty"`
	ComputeRVBulkErrorConvergence *float64 `json:"compute_rv_bulk_error_convergence,omitempty"`
	ComputeRVMaxNGoodIters        *int     `json:"compute_rv_max_n_good_iters,omitempty"`

	// Coarse CCF bootstrap, velocities in m/s
	RoughCCFMinRV       *float64 `json:"rough_ccf_min_rv,omitempty"`
	RoughCCFMaxRV       *float64 `json:"rough_ccf_max_rv,omitempty"`
	RoughCCFRVStep      *float64 `json:"rough_ccf_rv_step,omitempty"`
	RoughCCFEWidthGuess *float64 `json:"rough_ccf_ewidth_guess,omitempty"`

	// Object classification
	ObjectScience      *string  `json:"object_science,omitempty"`
	CalibrationObjects []string `json:"calibration_objects,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyLBLConfig returns an LBLConfig with all fields unset.
func EmptyLBLConfig() *LBLConfig {
	return &LBLConfig{}
}

// DefaultLBLConfig returns an LBLConfig with every field set to its
// built-in default.
func DefaultLBLConfig() *LBLConfig {
	empty := EmptyLBLConfig()
	return &LBLConfig{
		HPWidthKms:                    ptrFloat64(empty.GetHPWidthKms()),
		SplineOrder:                   ptrInt(empty.GetSplineOrder()),
		UseNoiseModel:                 ptrBool(empty.GetUseNoiseModel()),
		NoiseModelPoints:              ptrInt(empty.GetNoiseModelPoints()),
		ComputeRVNIterations:          ptrInt(empty.GetComputeRVNIterations()),
		ComputeLineMinPixWidth:        ptrInt(empty.GetComputeLineMinPixWidth()),
		ComputeLineNSigThres:          ptrFloat64(empty.GetComputeLineNSigThres()),
		ComputeRVBulkErrorConvergence: ptrFloat64(empty.GetComputeRVBulkErrorConvergence()),
		ComputeRVMaxNGoodIters:        ptrInt(empty.GetComputeRVMaxNGoodIters()),
		RoughCCFMinRV:                 ptrFloat64(empty.GetRoughCCFMinRV()),
		RoughCCFMaxRV:                 ptrFloat64(empty.GetRoughCCFMaxRV()),
		RoughCCFRVStep:                ptrFloat64(empty.GetRoughCCFRVStep()),
		RoughCCFEWidthGuess:           ptrFloat64(empty.GetRoughCCFEWidthGuess()),
		ObjectScience:                 ptrString(empty.GetObjectScience()),
		CalibrationObjects:            empty.GetCalibrationObjects(),
	}
}

// LoadLBLConfig loads an LBLConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to their defaults, so
// partial configs are safe.
func LoadLBLConfig(path string) (*LBLConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLBLConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *LBLConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/lbl-compute/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadLBLConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LBLConfig) Validate() error {
	if c.HPWidthKms != nil && *c.HPWidthKms <= 0 {
		return fmt.Errorf("hp_width_kms must be positive, got %f", *c.HPWidthKms)
	}
	if c.SplineOrder != nil && (*c.SplineOrder < 1 || *c.SplineOrder > 5) {
		return fmt.Errorf("spline_order must be between 1 and 5, got %d", *c.SplineOrder)
	}
	if c.NoiseModelPoints != nil && *c.NoiseModelPoints < 1 {
		return fmt.Errorf("noise_model_points must be positive, got %d", *c.NoiseModelPoints)
	}
	if c.ComputeRVNIterations != nil && *c.ComputeRVNIterations < 1 {
		return fmt.Errorf("compute_rv_n_iterations must be positive, got %d", *c.ComputeRVNIterations)
	}
	if c.ComputeLineMinPixWidth != nil && *c.ComputeLineMinPixWidth < 1 {
		return fmt.Errorf("compute_line_min_pix_width must be positive, got %d", *c.ComputeLineMinPixWidth)
	}
	if c.ComputeLineNSigThres != nil && *c.ComputeLineNSigThres <= 0 {
		return fmt.Errorf("compute_line_nsig_thres must be positive, got %f", *c.ComputeLineNSigThres)
	}
	if c.ComputeRVBulkErrorConvergence != nil && *c.ComputeRVBulkErrorConvergence <= 0 {
		return fmt.Errorf("compute_rv_bulk_error_convergence must be positive, got %f", *c.ComputeRVBulkErrorConvergence)
	}
	if c.ComputeRVMaxNGoodIters != nil && *c.ComputeRVMaxNGoodIters < 1 {
		return fmt.Errorf("compute_rv_max_n_good_iters must be positive, got %d", *c.ComputeRVMaxNGoodIters)
	}
	if c.RoughCCFRVStep != nil && *c.RoughCCFRVStep <= 0 {
		return fmt.Errorf("rough_ccf_rv_step must be positive, got %f", *c.RoughCCFRVStep)
	}
	if c.GetRoughCCFMinRV() >= c.GetRoughCCFMaxRV() {
		return fmt.Errorf("rough_ccf_min_rv (%f) must be below rough_ccf_max_rv (%f)",
			c.GetRoughCCFMinRV(), c.GetRoughCCFMaxRV())
	}
	if c.RoughCCFEWidthGuess != nil && *c.RoughCCFEWidthGuess <= 0 {
		return fmt.Errorf("rough_ccf_ewidth_guess must be positive, got %f", *c.RoughCCFEWidthGuess)
	}
	return nil
}

// GetHPWidthKms returns the high-pass width in km/s or the default.
func (c *LBLConfig) GetHPWidthKms() float64 {
	if c.HPWidthKms == nil {
		return 223
	}
	return *c.HPWidthKms
}

// GetSplineOrder returns the template spline degree or the default.
func (c *LBLConfig) GetSplineOrder() int {
	if c.SplineOrder == nil {
		return 5
	}
	return *c.SplineOrder
}

// GetUseNoiseModel reports whether an external per-pixel RMS model is
// supplied with each exposure.
func (c *LBLConfig) GetUseNoiseModel() bool {
	if c.UseNoiseModel == nil {
		return false
	}
	return *c.UseNoiseModel
}

// GetNoiseModelPoints returns the noise estimator window spacing or the default.
func (c *LBLConfig) GetNoiseModelPoints() int {
	if c.NoiseModelPoints == nil {
		return 100
	}
	return *c.NoiseModelPoints
}

// GetComputeRVNIterations returns the iteration budget or the default.
func (c *LBLConfig) GetComputeRVNIterations() int {
	if c.ComputeRVNIterations == nil {
		return 10
	}
	return *c.ComputeRVNIterations
}

// GetComputeLineMinPixWidth returns the minimum line width in pixels or the default.
func (c *LBLConfig) GetComputeLineMinPixWidth() int {
	if c.ComputeLineMinPixWidth == nil {
		return 5
	}
	return *c.ComputeLineMinPixWidth
}

// GetComputeLineNSigThres returns the dv/dvrms rejection threshold or the default.
func (c *LBLConfig) GetComputeLineNSigThres() float64 {
	if c.ComputeLineNSigThres == nil {
		return 8
	}
	return *c.ComputeLineNSigThres
}

// GetComputeRVBulkErrorConvergence returns the convergence fraction or the default.
func (c *LBLConfig) GetComputeRVBulkErrorConvergence() float64 {
	if c.ComputeRVBulkErrorConvergence == nil {
		return 0.2
	}
	return *c.ComputeRVBulkErrorConvergence
}

// GetComputeRVMaxNGoodIters returns the iteration count above which a fit
// is flagged as not converged, or the default.
func (c *LBLConfig) GetComputeRVMaxNGoodIters() int {
	if c.ComputeRVMaxNGoodIters == nil {
		return 8
	}
	return *c.ComputeRVMaxNGoodIters
}

// GetRoughCCFMinRV returns the lower CCF velocity bound in m/s or the default.
func (c *LBLConfig) GetRoughCCFMinRV() float64 {
	if c.RoughCCFMinRV == nil {
		return -300000
	}
	return *c.RoughCCFMinRV
}

// GetRoughCCFMaxRV returns the upper CCF velocity bound in m/s or the default.
func (c *LBLConfig) GetRoughCCFMaxRV() float64 {
	if c.RoughCCFMaxRV == nil {
		return 300000
	}
	return *c.RoughCCFMaxRV
}

// GetRoughCCFRVStep returns the CCF velocity step in m/s or the default.
func (c *LBLConfig) GetRoughCCFRVStep() float64 {
	if c.RoughCCFRVStep == nil {
		return 500
	}
	return *c.RoughCCFRVStep
}

// GetRoughCCFEWidthGuess returns the CCF width seed in m/s or the default.
func (c *LBLConfig) GetRoughCCFEWidthGuess() float64 {
	if c.RoughCCFEWidthGuess == nil {
		return 2000
	}
	return *c.RoughCCFEWidthGuess
}

// GetObjectScience returns the science object name or the default.
func (c *LBLConfig) GetObjectScience() string {
	if c.ObjectScience == nil {
		return ""
	}
	return *c.ObjectScience
}

// GetCalibrationObjects returns the object names treated as non-stellar
// calibration sources.
func (c *LBLConfig) GetCalibrationObjects() []string {
	if c.CalibrationObjects == nil {
		return []string{"FP"}
	}
	return append([]string(nil), c.CalibrationObjects...)
}
