package lbl

// Header holds the exposure metadata cards an instrument needs to derive
// per-exposure quantities such as the barycentric correction.
type Header map[string]string

// MaskLine is one entry of a line mask.
type MaskLine struct {
	Center float64
	Weight float64
}

// Spectrum is a one-dimensional template spectrum.
type Spectrum struct {
	Wave []float64
	Flux []float64
}

// Exposure is one science or calibration frame, flux per order and pixel.
type Exposure struct {
	Name   string
	Object string
	MJD    float64 // mid-exposure
	Header Header
	Flux   [][]float64

	// Wave is the raw per-order wavelength data as read from disk. Use
	// Instrument.WaveSolution rather than reading it directly.
	Wave [][]float64

	// RMS is an optional per-pixel noise model shipped with the exposure.
	RMS [][]float64
}

// Instrument is the capability set the pipeline needs from an
// instrument-specific reader.
type Instrument interface {
	WaveSolution(exp *Exposure) ([][]float64, error)
	BERV(hdr Header) (float64, error)
	LoadMask(path string) ([]MaskLine, error)
	LoadTemplate(path string) (*Spectrum, error)
	LoadExposure(path string) (*Exposure, error)
}

// ReferenceTableStore persists reference tables keyed by (template, mask).
type ReferenceTableStore interface {
	// LoadReferenceTable returns found=false with a nil error when no
	// table is stored under key.
	LoadReferenceTable(key string) (table *ReferenceTable, found bool, err error)
	SaveReferenceTable(key string, table *ReferenceTable) error
}

// ResultSink receives per-exposure outcomes.
type ResultSink interface {
	SaveResult(runID, exposure string, result *Result) error
	SaveSkipped(runID, exposure, reason string) error
}
