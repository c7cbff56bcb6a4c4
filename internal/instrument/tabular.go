package instrument

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/lbl/internal/fsutil"
	"github.com/banshee-data/lbl/internal/lbl"
	"github.com/banshee-data/lbl/internal/units"
)

// DefaultBERVKey is the header keyword holding the barycentric correction
// in km/s.
const DefaultBERVKey = "BERV"

// Tabular is an lbl.Instrument backed by CSV and JSON files.
type Tabular struct {
	FS      fsutil.FileSystem
	BERVKey string
}

var _ lbl.Instrument = (*Tabular)(nil)

// NewTabular returns a Tabular instrument reading from fsys. A nil fsys
// reads from the OS filesystem.
func NewTabular(fsys fsutil.FileSystem) *Tabular {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Tabular{FS: fsys, BERVKey: DefaultBERVKey}
}

// LoadMask reads a two-column (center, weight) CSV mask.
func (t *Tabular) LoadMask(path string) ([]lbl.MaskLine, error) {
	rows, err := t.readColumns(path, 2)
	if err != nil {
		return nil, err
	}
	mask := make([]lbl.MaskLine, len(rows))
	for i, r := range rows {
		mask[i] = lbl.MaskLine{Center: r[0], Weight: r[1]}
	}
	return mask, nil
}

// LoadTemplate reads a two-column (wavelength, flux) CSV template.
func (t *Tabular) LoadTemplate(path string) (*lbl.Spectrum, error) {
	rows, err := t.readColumns(path, 2)
	if err != nil {
		return nil, err
	}
	s := &lbl.Spectrum{Wave: make([]float64, len(rows)), Flux: make([]float64, len(rows))}
	for i, r := range rows {
		s.Wave[i], s.Flux[i] = r[0], r[1]
	}
	return s, nil
}

// readColumns parses a numeric CSV with ncol columns. A first row that
// does not parse as numbers is taken as a header.
func (t *Tabular) readColumns(path string, ncol int) ([][]float64, error) {
	data, err := t.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	r.FieldsPerRecord = ncol
	r.TrimLeadingSpace = true

	var rows [][]float64
	for line := 0; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		row := make([]float64, ncol)
		var parseErr error
		for i, field := range rec {
			if row[i], parseErr = parseValue(field); parseErr != nil {
				break
			}
		}
		if parseErr != nil {
			if line == 0 {
				continue
			}
			return nil, fmt.Errorf("parse %s row %d: %w", path, line+1, parseErr)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	return rows, nil
}

// parseValue parses a float, mapping empty fields and "nan" to NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// nullableRows decodes a JSON array of arrays with null for missing values.
type nullableRows [][]*float64

func (n nullableRows) values() [][]float64 {
	out := make([][]float64, len(n))
	for o, row := range n {
		out[o] = make([]float64, len(row))
		for i, v := range row {
			if v == nil {
				out[o][i] = math.NaN()
			} else {
				out[o][i] = *v
			}
		}
	}
	return out
}

type exposureFile struct {
	Object string            `json:"object"`
	MJDMid float64           `json:"mjd_mid"`
	BERV   *float64          `json:"berv,omitempty"` // km/s
	Header map[string]string `json:"header,omitempty"`
	Wave   nullableRows      `json:"wave"`
	Flux   nullableRows      `json:"flux"`
	RMS    nullableRows      `json:"rms,omitempty"`
}

// LoadExposure reads a JSON exposure. A top-level "berv" (km/s) fills the
// BERV header keyword when the header does not already carry it.
func (t *Tabular) LoadExposure(path string) (*lbl.Exposure, error) {
	data, err := t.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f exposureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(f.Flux) == 0 {
		return nil, fmt.Errorf("%s: no flux orders", path)
	}

	hdr := lbl.Header{}
	for k, v := range f.Header {
		hdr[k] = v
	}
	if _, ok := hdr[t.bervKey()]; !ok && f.BERV != nil {
		hdr[t.bervKey()] = strconv.FormatFloat(*f.BERV, 'g', -1, 64)
	}

	var rms [][]float64
	if len(f.RMS) > 0 {
		rms = f.RMS.values()
	}

	base := filepath.Base(path)
	return &lbl.Exposure{
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Object: f.Object,
		MJD:    f.MJDMid,
		Header: hdr,
		Flux:   f.Flux.values(),
		Wave:   f.Wave.values(),
		RMS:    rms,
	}, nil
}

// WaveSolution returns the exposure's own per-order wavelength grid.
func (t *Tabular) WaveSolution(exp *lbl.Exposure) ([][]float64, error) {
	if len(exp.Wave) != len(exp.Flux) {
		return nil, fmt.Errorf("%s: %d wavelength orders for %d flux orders", exp.Name, len(exp.Wave), len(exp.Flux))
	}
	for o := range exp.Wave {
		if len(exp.Wave[o]) != len(exp.Flux[o]) {
			return nil, fmt.Errorf("%s: order %d has %d wavelengths for %d pixels", exp.Name, o, len(exp.Wave[o]), len(exp.Flux[o]))
		}
	}
	return exp.Wave, nil
}

// BERV returns the barycentric correction in m/s from the header.
func (t *Tabular) BERV(hdr lbl.Header) (float64, error) {
	raw, ok := hdr[t.bervKey()]
	if !ok {
		return 0, fmt.Errorf("header has no %s keyword", t.bervKey())
	}
	kms, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", t.bervKey(), raw, err)
	}
	return units.ToMPS(kms, units.KMPS), nil
}

func (t *Tabular) bervKey() string {
	if t.BERVKey == "" {
		return DefaultBERVKey
	}
	return t.BERVKey
}

// LoadBlaze reads a JSON blaze file.
func (t *Tabular) LoadBlaze(path string) ([][]float64, error) {
	data, err := t.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f struct {
		Blaze nullableRows `json:"blaze"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(f.Blaze) == 0 {
		return nil, fmt.Errorf("%s: no blaze orders", path)
	}
	return f.Blaze.values(), nil
}
