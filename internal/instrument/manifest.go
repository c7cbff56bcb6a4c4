package instrument

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/banshee-data/lbl/internal/fsutil"
	"github.com/banshee-data/lbl/internal/lbl"
	"github.com/banshee-data/lbl/internal/units"
)

var ErrManifestInvalid = errors.New("run manifest is invalid")

// Manifest describes one object's compute run. Relative paths are
// resolved against the manifest's directory.
type Manifest struct {
	Object string `yaml:"object"`

	Template string `yaml:"template"`
	// systemic velocity of the template
	TemplateVelocityKms float64 `yaml:"template_velocity_kms"`
	Mask                string  `yaml:"mask"`
	Blaze               string  `yaml:"blaze,omitempty"`

	// Exposures are paths or glob patterns, processed in the listed
	// order; matches of one pattern are sorted by name.
	Exposures []string `yaml:"exposures"`

	// Config optionally names an LBL tuning JSON file.
	Config string `yaml:"config,omitempty"`
}

// LoadManifest reads and verifies a YAML manifest.
func LoadManifest(fsys fsutil.FileSystem, path string) (*Manifest, error) {
	buf, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(buf, m); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestInvalid, err)
	}
	if err := m.Verify(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	m.Template = resolve(m.Template)
	m.Mask = resolve(m.Mask)
	m.Blaze = resolve(m.Blaze)
	m.Config = resolve(m.Config)
	for i := range m.Exposures {
		m.Exposures[i] = resolve(m.Exposures[i])
	}
	return m, nil
}

// Verify checks that the required fields are present.
func (m *Manifest) Verify() error {
	switch {
	case m.Object == "":
		return fmt.Errorf("%w: object is empty", ErrManifestInvalid)
	case m.Template == "":
		return fmt.Errorf("%w: template is empty", ErrManifestInvalid)
	case m.Mask == "":
		return fmt.Errorf("%w: mask is empty", ErrManifestInvalid)
	case len(m.Exposures) == 0:
		return fmt.Errorf("%w: no exposures", ErrManifestInvalid)
	}
	return nil
}

// ExpandExposures resolves the exposure patterns into file paths. Each
// path appears once, at its first match.
func (m *Manifest) ExpandExposures(fsys fsutil.FileSystem) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pattern := range m.Exposures {
		var matches []string
		if strings.ContainsAny(pattern, "*?[") {
			var err error
			if matches, err = fsys.Glob(pattern); err != nil {
				return nil, fmt.Errorf("expand %s: %w", pattern, err)
			}
		} else if fsys.Exists(pattern) {
			matches = []string{pattern}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s matches no exposure", ErrManifestInvalid, pattern)
		}
		for _, p := range matches {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// RunInput builds the runner input for this manifest, loading the blaze
// if one is named.
func (m *Manifest) RunInput(t *Tabular, runID string) (lbl.RunInput, error) {
	exposures, err := m.ExpandExposures(t.FS)
	if err != nil {
		return lbl.RunInput{}, err
	}
	in := lbl.RunInput{
		RunID:            runID,
		TemplatePath:     m.Template,
		MaskPath:         m.Mask,
		TemplateVelocity: units.ToMPS(m.TemplateVelocityKms, units.KMPS),
		Exposures:        exposures,
	}
	if m.Blaze != "" {
		if in.Blaze, err = t.LoadBlaze(m.Blaze); err != nil {
			return lbl.RunInput{}, err
		}
	}
	return in, nil
}
