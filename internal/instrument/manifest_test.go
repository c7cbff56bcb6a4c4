package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
object: GL699
template: templates/GL699.csv
template_velocity_kms: -110.5
mask: /masks/GL699_pos.csv
blaze: blaze.json
config: lbl.json
exposures:
  - science/b.json
  - science/*.json
`

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	mfs := newTestFS(t, map[string]string{
		"/run/manifest.yaml":    testManifest,
		"/run/blaze.json":       `{"blaze": [[1, 1]]}`,
		"/run/science/a.json":   `{}`,
		"/run/science/b.json":   `{}`,
		"/run/science/c.json":   `{}`,
		"/run/science/note.txt": ``,
	})

	m, err := LoadManifest(mfs, "/run/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "GL699", m.Object)
	assert.Equal(t, "/run/templates/GL699.csv", m.Template)
	assert.Equal(t, "/masks/GL699_pos.csv", m.Mask)
	assert.Equal(t, "/run/lbl.json", m.Config)

	in, err := m.RunInput(NewTabular(mfs), "run-7")
	require.NoError(t, err)
	assert.Equal(t, "run-7", in.RunID)
	assert.Equal(t, -110500.0, in.TemplateVelocity)
	assert.Equal(t, [][]float64{{1, 1}}, in.Blaze)
	// explicit entries keep their place; glob matches follow in name order
	assert.Equal(t, []string{"/run/science/b.json", "/run/science/a.json", "/run/science/c.json"}, in.Exposures)
}

func TestLoadManifest_Invalid(t *testing.T) {
	t.Parallel()
	mfs := newTestFS(t, map[string]string{
		"/no-object.yaml": "template: t.csv\nmask: m.csv\nexposures: [a.json]\n",
		"/no-exp.yaml":    "object: X\ntemplate: t.csv\nmask: m.csv\n",
		"/bad.yaml":       "object: [unterminated\n",
		"/nomatch.yaml":   "object: X\ntemplate: t.csv\nmask: m.csv\nexposures: [missing/*.json]\n",
	})

	for _, path := range []string{"/no-object.yaml", "/no-exp.yaml", "/bad.yaml"} {
		_, err := LoadManifest(mfs, path)
		assert.ErrorIs(t, err, ErrManifestInvalid, path)
	}

	m, err := LoadManifest(mfs, "/nomatch.yaml")
	require.NoError(t, err)
	_, err = m.ExpandExposures(mfs)
	assert.ErrorIs(t, err, ErrManifestInvalid)

	_, err = LoadManifest(mfs, "/absent.yaml")
	assert.Error(t, err)
}
