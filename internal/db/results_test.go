package db

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lbl/internal/lbl"
	"github.com/banshee-data/lbl/internal/timeutil"
)

func testResult() *lbl.Result {
	nan := math.NaN()
	active := lbl.ReferenceLine{Order: 0, WaveStart: 5001.3, WaveEnd: 5004.7, Weight: 0.2, XPix: 13}
	active.LineDiagnostics = lbl.LineDiagnostics{
		NPixLine: 35, MeanXPix: 30.1, MeanBlaze: 0.9, AmpContinuum: 1.1,
		RMSRatio: 1.05, Chi2: 33.2, Chi2ValidCDF: 0.55,
		DV: 3.2, DVRMS: 11.5, DDV: 1e5, DDVRMS: 2e5, DDDV: -3e9, DDDVRMS: 4e9, RV: -42.7,
		Status: lbl.LineStatus{Kind: lbl.LineActive},
	}
	narrow := lbl.ReferenceLine{Order: 1, WaveStart: 5016, WaveEnd: 5016.3, Weight: 1.1, XPix: 10}
	narrow.LineDiagnostics = lbl.LineDiagnostics{
		MeanXPix: nan, MeanBlaze: nan, AmpContinuum: nan, RMSRatio: nan, Chi2: nan, Chi2ValidCDF: nan,
		DV: nan, DVRMS: nan, DDV: nan, DDVRMS: nan, DDDV: nan, DDDVRMS: nan, RV: nan,
		Status: lbl.LineStatus{Kind: lbl.LineExcludedNarrow, Iteration: 0},
	}
	return &lbl.Result{
		Table:            &lbl.ReferenceTable{Lines: []lbl.ReferenceLine{active, narrow}},
		SystemicVelocity: -100.4,
		InitialVelocity:  -98,
		SeedSource:       lbl.SeedCCF,
		BulkError:        0.8,
		RMSRatio:         1.02,
		CCFEWidth:        5996,
		HPWidth:          223000,
		State:            lbl.StateConverged,
		Iterations:       3,
		Duration:         1500 * time.Millisecond,
		MJD:              60000.25,
		BERV:             -12.5,
	}
}

func TestResults_SaveAndList(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	db.SetClock(timeutil.NewMockClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	runID, err := db.StartRun(Run{
		ObjectScience: "GL699",
		TemplatePath:  "/t/GL699.csv",
		MaskPath:      "/m/GL699_pos.csv",
		TableKey:      "GL699.csv|GL699_pos.csv",
		ConfigJSON:    `{"hp_width_kms":223}`,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err)

	run, err := db.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "GL699", run.ObjectScience)
	assert.Equal(t, 1709251200.0, run.StartedUnix)

	res := testResult()
	require.NoError(t, db.SaveSkipped(runID, "e1", "ccf gaussian fit did not converge: flat CCF"))
	require.NoError(t, db.SaveResult(runID, "e2", res))
	// saving again replaces rather than duplicates
	require.NoError(t, db.SaveResult(runID, "e2", res))

	records, err := db.ListResults(runID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	skipped := records[0]
	assert.Equal(t, "e1", skipped.Exposure)
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Contains(t, skipped.SkipReason, "flat CCF")
	assert.True(t, math.IsNaN(skipped.SystemicVelocity))

	got := records[1]
	want := ExposureRecord{
		RunID: runID, Exposure: "e2", Status: "converged",
		MJD: 60000.25, BERV: -12.5, SystemicVelocity: -100.4, InitialVelocity: -98,
		SeedSource: "ccf", BulkError: 0.8, RMSRatio: 1.02, CCFEWidth: 5996, HPWidth: 223000,
		Iterations: 3, DurationMs: 1500,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, -87.9, got.Velocity(), 1e-9)

	lines, err := db.LoadLineResults(runID, "e2")
	require.NoError(t, err)
	if diff := cmp.Diff(res.Table.Lines, lines, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("line mismatch (-want +got):\n%s", diff)
	}
}

func TestResults_RequiresRun(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	assert.Error(t, db.SaveResult("missing-run", "e1", testResult()))
	assert.Error(t, db.SaveSkipped("missing-run", "e1", "reason"))

	_, err := db.GetRun("missing-run")
	assert.Error(t, err)
}
