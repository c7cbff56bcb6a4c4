package lbl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReferenceTable(t *testing.T) {
	t.Parallel()
	wave := [][]float64{
		grid(5000, 0.1, 101), // 5000 - 5010
		grid(5008, 0.1, 101), // 5008 - 5018
		grid(6000, 0.1, 101), // no mask lines
	}
	mask := []MaskLine{
		{Center: 5004, Weight: 0.4},
		{Center: 5001, Weight: 0.1},
		{Center: 5009, Weight: 0.9},
		{Center: 5000, Weight: 1}, // on the order edge, not strictly inside
		{Center: 5015, Weight: 1.5},
	}

	table, err := BuildReferenceTable(mask, wave)
	require.NoError(t, err)

	want := []ReferenceLine{
		{Order: 0, WaveStart: 5001, WaveEnd: 5004, Weight: 0.1, XPix: 10},
		{Order: 0, WaveStart: 5004, WaveEnd: 5009, Weight: 0.4, XPix: 40},
		{Order: 1, WaveStart: 5009, WaveEnd: 5015, Weight: 0.9, XPix: 10},
	}
	if diff := cmp.Diff(want, table.Lines, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, table.Validate(len(wave)))
	assert.Error(t, table.Validate(1))
}

func TestBuildReferenceTable_SingleCentreOrder(t *testing.T) {
	t.Parallel()
	table, err := BuildReferenceTable([]MaskLine{{Center: 5005, Weight: 1}}, [][]float64{grid(5000, 0.1, 101)})
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestReferenceTableClone(t *testing.T) {
	t.Parallel()
	table := &ReferenceTable{Lines: []ReferenceLine{{Order: 0, WaveStart: 1, WaveEnd: 2}}}
	clone := table.Clone()
	clone.Lines[0].DV = 42
	clone.Lines[0].Status = LineStatus{Kind: LineExcludedNarrow}
	assert.Zero(t, table.Lines[0].DV)
	assert.Equal(t, LineActive, table.Lines[0].Status.Kind)
}

func TestLineStatusKindRoundTrip(t *testing.T) {
	t.Parallel()
	for _, k := range []LineStatusKind{LineActive, LineExcludedNarrow, LineExcludedEdge} {
		got, err := ParseLineStatusKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseLineStatusKind("bogus")
	assert.Error(t, err)
}

// memTableStore is an in-memory ReferenceTableStore.
type memTableStore struct {
	tables  map[string]*ReferenceTable
	saves   int
	loadErr error
}

func (m *memTableStore) LoadReferenceTable(key string) (*ReferenceTable, bool, error) {
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	t, ok := m.tables[key]
	return t, ok, nil
}

func (m *memTableStore) SaveReferenceTable(key string, table *ReferenceTable) error {
	if m.tables == nil {
		m.tables = map[string]*ReferenceTable{}
	}
	m.tables[key] = table.Clone()
	m.saves++
	return nil
}

func TestLoadOrBuildReferenceTable(t *testing.T) {
	t.Parallel()
	wave := [][]float64{grid(5000, 0.1, 101)}
	mask := []MaskLine{{Center: 5001, Weight: 1}, {Center: 5002, Weight: 1}, {Center: 5003, Weight: 1}}
	store := &memTableStore{}

	built, wasBuilt, err := LoadOrBuildReferenceTable(store, "k", mask, wave, nil)
	require.NoError(t, err)
	assert.True(t, wasBuilt)
	assert.Equal(t, 2, built.Len())
	assert.Equal(t, 1, store.saves)

	// the second call loads verbatim, even with a different mask
	loaded, wasBuilt, err := LoadOrBuildReferenceTable(store, "k", nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, wasBuilt)
	assert.Equal(t, built.Lines, loaded.Lines)
	assert.Equal(t, 1, store.saves)

	t.Run("nil store builds", func(t *testing.T) {
		table, wasBuilt, err := LoadOrBuildReferenceTable(nil, "k", mask, wave, nil)
		require.NoError(t, err)
		assert.True(t, wasBuilt)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("load error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := LoadOrBuildReferenceTable(&memTableStore{loadErr: boom}, "k", mask, wave, nil)
		assert.ErrorIs(t, err, boom)
	})
}
