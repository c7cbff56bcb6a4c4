package db

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lbl/internal/lbl"
)

func testWave() [][]float64 {
	wave := make([][]float64, 2)
	for o := range wave {
		wave[o] = make([]float64, 200)
		for i := range wave[o] {
			wave[o][i] = 5000 + 15*float64(o) + 0.1*float64(i)
		}
	}
	return wave
}

func testMask() []lbl.MaskLine {
	return []lbl.MaskLine{
		{Center: 5001.3, Weight: 0.2},
		{Center: 5004.7, Weight: 0.8},
		{Center: 5012.05, Weight: 0.5},
		{Center: 5016.0, Weight: 1.1},
		{Center: 5030.2, Weight: 0.3},
	}
}

func TestReferenceTableRoundTrip(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	built, err := lbl.BuildReferenceTable(testMask(), testWave())
	require.NoError(t, err)
	require.NotZero(t, built.Len())

	// diagnostics are never persisted
	withDiag := built.Clone()
	withDiag.Lines[0].DV = 12

	require.NoError(t, db.SaveReferenceTable("GL699.csv|mask.csv", withDiag))
	loaded, found, err := db.LoadReferenceTable("GL699.csv|mask.csv")
	require.NoError(t, err)
	require.True(t, found)

	if diff := cmp.Diff(built.Lines, loaded.Lines); diff != "" {
		t.Errorf("reference table mismatch (-built +loaded):\n%s", diff)
	}
}

func TestReferenceTable_MissingAndReplace(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	_, found, err := db.LoadReferenceTable("nope")
	require.NoError(t, err)
	assert.False(t, found)

	first := &lbl.ReferenceTable{Lines: []lbl.ReferenceLine{
		{Order: 0, WaveStart: 1, WaveEnd: 2, Weight: 1, XPix: math.NaN()},
		{Order: 1, WaveStart: 3, WaveEnd: 4, Weight: 2, XPix: 7},
	}}
	second := &lbl.ReferenceTable{Lines: []lbl.ReferenceLine{
		{Order: 2, WaveStart: 5, WaveEnd: 6, Weight: 3, XPix: 8},
	}}
	require.NoError(t, db.SaveReferenceTable("k", first))

	loaded, _, err := db.LoadReferenceTable("k")
	require.NoError(t, err)
	if diff := cmp.Diff(first.Lines, loaded.Lines, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, db.SaveReferenceTable("k", second))
	loaded, _, err = db.LoadReferenceTable("k")
	require.NoError(t, err)
	assert.Equal(t, second.Lines, loaded.Lines)

	keys, err := db.ReferenceTableKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestReferenceTable_LoadOrBuild(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	table, built, err := lbl.LoadOrBuildReferenceTable(db, "key", testMask(), testWave(), nil)
	require.NoError(t, err)
	assert.True(t, built)

	again, built, err := lbl.LoadOrBuildReferenceTable(db, "key", nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, table.Lines, again.Lines)
}
