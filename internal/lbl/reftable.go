package lbl

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/lbl/internal/monitoring"
	"github.com/banshee-data/lbl/internal/spectral"
)

// LineStatusKind classifies whether a line takes part in the fit.
type LineStatusKind int

const (
	// LineActive lines are fitted every iteration.
	LineActive LineStatusKind = iota
	// LineExcludedNarrow lines resolved to fewer pixels than the
	// configured minimum; the exclusion lasts for the whole exposure.
	LineExcludedNarrow
	// LineExcludedEdge lines fell off the order edge in the recorded
	// iteration and are retried on the next one.
	LineExcludedEdge
)

func (k LineStatusKind) String() string {
	switch k {
	case LineActive:
		return "active"
	case LineExcludedNarrow:
		return "excluded_narrow"
	case LineExcludedEdge:
		return "excluded_edge"
	default:
		return fmt.Sprintf("LineStatusKind(%d)", int(k))
	}
}

// ParseLineStatusKind is the inverse of LineStatusKind.String.
func ParseLineStatusKind(s string) (LineStatusKind, error) {
	switch s {
	case "active":
		return LineActive, nil
	case "excluded_narrow":
		return LineExcludedNarrow, nil
	case "excluded_edge":
		return LineExcludedEdge, nil
	}
	return 0, fmt.Errorf("unknown line status %q", s)
}

// LineStatus is a line's participation state. Iteration is the zero-based
// iteration in which an exclusion was recorded.
type LineStatus struct {
	Kind      LineStatusKind
	Iteration int
}

// LineDiagnostics are the per-line outputs of one exposure's fit.
// Velocities are in m/s; DDV and DDDV are the 2nd and 3rd derivative
// projections in (m/s)^2 and (m/s)^3.
type LineDiagnostics struct {
	NPixLine     int
	MeanXPix     float64
	MeanBlaze    float64
	AmpContinuum float64
	RMSRatio     float64
	Chi2         float64
	Chi2ValidCDF float64
	DV           float64
	DVRMS        float64
	DDV          float64
	DDVRMS       float64
	DDDV         float64
	DDDVRMS      float64
	RV           float64
	Status       LineStatus
}

// unknownDiagnostics is the placeholder state before a line is measured.
func unknownDiagnostics() LineDiagnostics {
	nan := math.NaN()
	return LineDiagnostics{
		MeanXPix: nan, MeanBlaze: nan, AmpContinuum: nan,
		RMSRatio: nan, Chi2: nan, Chi2ValidCDF: nan,
		DV: nan, DVRMS: nan, DDV: nan, DDVRMS: nan, DDDV: nan, DDDVRMS: nan,
		RV: nan,
	}
}

// ReferenceLine is one candidate absorption feature between two adjacent
// mask centres. Order, WaveStart, WaveEnd, Weight and XPix are fixed when
// the table is built.
type ReferenceLine struct {
	Order     int
	WaveStart float64
	WaveEnd   float64
	Weight    float64
	XPix      float64

	LineDiagnostics
}

// ReferenceTable is the ordered line list of one (template, mask) pair.
type ReferenceTable struct {
	Lines []ReferenceLine
}

// Len returns the number of lines.
func (t *ReferenceTable) Len() int { return len(t.Lines) }

// Clone returns an independent copy of the table.
func (t *ReferenceTable) Clone() *ReferenceTable {
	lines := make([]ReferenceLine, len(t.Lines))
	copy(lines, t.Lines)
	return &ReferenceTable{Lines: lines}
}

// Validate checks the geometry of every line against an nOrders-order
// frame. nOrders <= 0 skips the order check.
func (t *ReferenceTable) Validate(nOrders int) error {
	for i, l := range t.Lines {
		if !(l.WaveStart < l.WaveEnd) {
			return fmt.Errorf("line %d: wave start %v not below wave end %v", i, l.WaveStart, l.WaveEnd)
		}
		if l.Order < 0 || (nOrders > 0 && l.Order >= nOrders) {
			return fmt.Errorf("line %d: order %d out of range [0, %d)", i, l.Order, nOrders)
		}
	}
	return nil
}

// BuildReferenceTable intersects a line mask with a per-order wavelength
// solution. For each order the mask centres strictly inside the order's
// wavelength range are sorted, and every consecutive pair becomes one line
// weighted by the first centre's weight. Orders with fewer than two
// surviving centres contribute nothing.
func BuildReferenceTable(mask []MaskLine, wave [][]float64) (*ReferenceTable, error) {
	table := &ReferenceTable{}
	for order, ww := range wave {
		finite := spectral.Finite(ww)
		if len(finite) == 0 {
			continue
		}
		minWave, maxWave := finite[0], finite[0]
		for _, w := range finite {
			minWave = math.Min(minWave, w)
			maxWave = math.Max(maxWave, w)
		}

		var good []MaskLine
		for _, m := range mask {
			if m.Center > minWave && m.Center < maxWave {
				good = append(good, m)
			}
		}
		sort.SliceStable(good, func(i, j int) bool { return good[i].Center < good[j].Center })
		if len(good) < 2 {
			continue
		}

		pm, err := spectral.NewPixelMap(ww)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", order, err)
		}
		for i := 0; i+1 < len(good); i++ {
			// duplicate centres give an empty window
			if good[i+1].Center <= good[i].Center {
				continue
			}
			table.Lines = append(table.Lines, ReferenceLine{
				Order:     order,
				WaveStart: good[i].Center,
				WaveEnd:   good[i+1].Center,
				Weight:    good[i].Weight,
				XPix:      pm.Pixel(good[i].Center),
			})
		}
	}
	return table, nil
}

// LoadOrBuildReferenceTable returns the table stored under key, or builds
// it from mask and wave and stores it. built reports which path was taken.
// A nil store always builds and persists nothing.
func LoadOrBuildReferenceTable(store ReferenceTableStore, key string, mask []MaskLine, wave [][]float64, logf monitoring.Logf) (table *ReferenceTable, built bool, err error) {
	logf = logf.With("RefTable")
	if store != nil {
		table, found, err := store.LoadReferenceTable(key)
		if err != nil {
			return nil, false, fmt.Errorf("load reference table %q: %w", key, err)
		}
		if found {
			logf("loaded %d lines for %s", table.Len(), key)
			return table, false, nil
		}
	}

	table, err = BuildReferenceTable(mask, wave)
	if err != nil {
		return nil, false, fmt.Errorf("build reference table: %w", err)
	}
	logf("built %d lines from %d mask entries over %d orders", table.Len(), len(mask), len(wave))

	if store != nil {
		if err := store.SaveReferenceTable(key, table); err != nil {
			return nil, true, fmt.Errorf("save reference table %q: %w", key, err)
		}
		logf("wrote reference table %s", key)
	}
	return table, true, nil
}
