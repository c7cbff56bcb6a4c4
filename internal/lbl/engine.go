package lbl

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/lbl/internal/monitoring"
	"github.com/banshee-data/lbl/internal/spectral"
	"github.com/banshee-data/lbl/internal/timeutil"
	"github.com/banshee-data/lbl/internal/units"
)

// FitState is the per-exposure state of the line fit.
type FitState int

const (
	StateBootstrap FitState = iota
	StateIterating
	StateConverged
	StateNotConverged
)

func (s FitState) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateNotConverged:
		return "not_converged"
	default:
		return fmt.Sprintf("FitState(%d)", int(s))
	}
}

// ParseFitState is the inverse of FitState.String.
func ParseFitState(s string) (FitState, error) {
	for _, st := range []FitState{StateBootstrap, StateIterating, StateConverged, StateNotConverged} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown fit state %q", s)
}

// Seed sources recorded on Result.
const (
	SeedCCF     = "ccf"
	SeedArchive = "archive"
	SeedZero    = "zero"
)

// ExposureInput is everything the engine needs for one exposure. Flux,
// Wave, Blaze and RMS are indexed [order][pixel] and share one shape.
type ExposureInput struct {
	Name string
	Flux [][]float64
	Wave [][]float64
	// Blaze multiplies the template models; nil means unity.
	Blaze [][]float64
	// RMS is the external per-pixel noise model, required when
	// Config.UseNoiseModel is set and ignored otherwise.
	RMS [][]float64

	BERV float64 // m/s
	MJD  float64

	// Calibration exposures are seeded from the archive, never the CCF.
	Calibration bool
	// Reset requests a fresh CCF bootstrap for a stellar exposure.
	Reset bool
	// CCFEWidth fixes the CCF width; zero adopts the fitted one.
	CCFEWidth float64
}

// Result is the outcome of one exposure.
type Result struct {
	// Table is this exposure's copy of the reference table with every
	// line's diagnostics filled in.
	Table *ReferenceTable

	SystemicVelocity float64 // adopted systemic velocity, m/s
	InitialVelocity  float64 // seed velocity, m/s
	SeedSource       string
	BulkError        float64
	RMSRatio         float64 // robust sigma of dv/dvrms over the averaged lines
	CCFEWidth        float64
	HPWidth          float64 // m/s
	State            FitState
	Iterations       int
	// ResetNext asks the caller to bootstrap the next exposure from the CCF.
	ResetNext bool
	Duration  time.Duration

	MJD  float64
	BERV float64
}

// Engine fits exposures against one (template, reference table) pair. The
// splines and the table are shared read-only; every exposure works on a
// clone of the table.
type Engine struct {
	cfg     Config
	splines *TemplateSplines
	table   *ReferenceTable
	logf    monitoring.Logf
	clock   timeutil.Clock
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config, splines *TemplateSplines, table *ReferenceTable, logf monitoring.Logf) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if splines == nil {
		return nil, fmt.Errorf("nil template splines")
	}
	if table == nil {
		return nil, fmt.Errorf("nil reference table")
	}
	return &Engine{cfg: cfg, splines: splines, table: table, logf: logf.With("LineFit"), clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used to time exposures and iterations.
func (e *Engine) SetClock(c timeutil.Clock) {
	e.clock = timeutil.OrReal(c)
}

// orderModels holds the shifted template models of every order for one
// iteration.
type orderModels struct {
	wave   [][]float64
	model  [][]float64
	dmodel [][]float64
	ddmod  [][]float64
	dddmod [][]float64
	pixmap []*spectral.PixelMap
}

// ComputeRV runs the line-by-line fit of one exposure. The adopted
// barycentric velocity (systemic minus BERV) is recorded in archive when
// archive is non-nil.
//
// A coarse CCF failure is returned as *FitConvergenceError; too few valid
// samples for the noise model or the velocity average as
// *InsufficientDataError. A fit that exhausts its budget is not an error:
// it is reported through Result.State and Result.ResetNext.
func (e *Engine) ComputeRV(in ExposureInput, archive *RunningArchive) (*Result, error) {
	clock := timeutil.OrReal(e.clock)
	start := clock.Now()
	if err := e.checkInput(in); err != nil {
		return nil, err
	}
	cfg := e.cfg
	nOrders := len(in.Flux)

	res := &Result{
		State:     StateBootstrap,
		CCFEWidth: in.CCFEWidth,
		HPWidth:   cfg.HPWidth,
		MJD:       in.MJD,
		BERV:      in.BERV,
	}

	// high-pass the science with the template's velocity scale
	sci := make([][]float64, nOrders)
	for o := range in.Flux {
		sci[o] = spectral.HighPass(in.Flux[o], spectral.VeloScale(in.Wave[o], cfg.HPWidth))
	}

	sysRV, err := e.seed(in, sci, archive, res)
	if err != nil {
		return nil, err
	}
	res.InitialVelocity = sysRV
	e.logf("%s: seeded at %.2f m/s from %s", in.Name, sysRV, res.SeedSource)

	table := e.table.Clone()
	for i := range table.Lines {
		table.Lines[i].LineDiagnostics = unknownDiagnostics()
	}
	rvFinal := make([]float64, table.Len())

	var rawFlux []float64
	for _, order := range in.Flux {
		rawFlux = append(rawFlux, order...)
	}
	rawMedian := spectral.NanMedian(rawFlux)
	var model0 [][]float64

	res.State = StateIterating
	converged := false
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		res.Iterations++
		iterStart := clock.Now()

		models, err := e.buildModels(in, sci, sysRV)
		if err != nil {
			return nil, err
		}
		if iter == 0 {
			model0 = e.continuumModel(in, models.wave, rawMedian)
		}

		rms := in.RMS
		if !cfg.UseNoiseModel {
			rms, err = EstimateNoiseModel(sci, models.model, cfg.NoiseModelPoints)
			if err != nil {
				return nil, fmt.Errorf("%s: noise model: %w", in.Name, err)
			}
		}

		for li := range table.Lines {
			e.measureLine(&table.Lines[li], iter, in, sci, rms, models, model0)
		}

		rvMean, bulkError, rmsRatio, used := aggregateLines(table.Lines, cfg)
		if used == 0 || !spectral.IsFinite(rvMean) {
			return nil, &InsufficientDataError{What: "line velocities", Have: 0, Need: 1}
		}
		res.RMSRatio = rmsRatio
		res.BulkError = bulkError

		for li, l := range table.Lines {
			rvFinal[li] = l.DV + sysRV - in.BERV
		}
		sysRV += rvMean

		e.logf("%s: iteration %d: %d lines, update %.3f m/s, bulk error %.3f m/s, rv %.3f m/s, stdev_meas/stdev_pred %.2f (%v)",
			in.Name, iter, used, rvMean, bulkError, sysRV, rmsRatio, clock.Since(iterStart))

		if math.Abs(rvMean) < cfg.ConvergenceFraction*bulkError {
			converged = true
			break
		}
	}

	for li := range table.Lines {
		l := &table.Lines[li]
		if l.Status.Kind == LineExcludedNarrow {
			clearDiagnostics(l)
			continue
		}
		l.RV = -rvFinal[li]
		l.Chi2ValidCDF = chi2ValidCDF(l.Chi2, l.NPixLine)
	}

	res.Table = table
	res.SystemicVelocity = sysRV
	if converged && res.Iterations < cfg.MaxGoodIterations {
		res.State = StateConverged
		e.logf("%s: converged in %d iterations", in.Name, res.Iterations)
	} else {
		res.State = StateNotConverged
		res.ResetNext = true
		e.logf("%s: not converged after %d iterations, next exposure will use the CCF", in.Name, res.Iterations)
	}

	if archive != nil {
		archive.Record(in.MJD, sysRV-in.BERV)
	}
	res.Duration = clock.Since(start)
	return res, nil
}

func (e *Engine) checkInput(in ExposureInput) error {
	n := len(in.Flux)
	if n == 0 {
		return fmt.Errorf("%s: no orders", in.Name)
	}
	sameShape := func(name string, arr [][]float64) error {
		if len(arr) != n {
			return fmt.Errorf("%s: %s has %d orders, flux has %d", in.Name, name, len(arr), n)
		}
		for o := range arr {
			if len(arr[o]) != len(in.Flux[o]) {
				return fmt.Errorf("%s: %s order %d has %d pixels, flux has %d", in.Name, name, o, len(arr[o]), len(in.Flux[o]))
			}
		}
		return nil
	}
	if err := sameShape("wavelength", in.Wave); err != nil {
		return err
	}
	if in.Blaze != nil {
		if err := sameShape("blaze", in.Blaze); err != nil {
			return err
		}
	}
	if e.cfg.UseNoiseModel {
		if in.RMS == nil {
			return fmt.Errorf("%s: noise model enabled but no RMS supplied", in.Name)
		}
		if err := sameShape("rms", in.RMS); err != nil {
			return err
		}
	}
	return e.table.Validate(n)
}

// seed picks the starting systemic velocity and records how on res.
func (e *Engine) seed(in ExposureInput, sci [][]float64, archive *RunningArchive, res *Result) (float64, error) {
	fromArchive := func() float64 {
		if v, ok := archive.Nearest(in.MJD); ok {
			res.SeedSource = SeedArchive
			return v + in.BERV
		}
		res.SeedSource = SeedZero
		return 0
	}

	switch {
	case in.Calibration:
		return fromArchive(), nil
	case in.Reset || archive.Len() == 0:
		centers := make([]float64, e.table.Len())
		weights := make([]float64, e.table.Len())
		for i, l := range e.table.Lines {
			centers[i], weights[i] = l.WaveStart, l.Weight
		}
		ccf, err := RoughCCF(in.Wave, sci, centers, weights, e.cfg, e.logf)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", in.Name, err)
		}
		if res.CCFEWidth == 0 {
			res.CCFEWidth = ccf.EWidth
			e.logf("%s: CCF e-width = %.2f m/s", in.Name, ccf.EWidth)
		}
		res.SeedSource = SeedCCF
		return ccf.Velocity, nil
	default:
		return fromArchive(), nil
	}
}

func (e *Engine) blaze(in ExposureInput, o, i int) float64 {
	if in.Blaze == nil {
		return 1
	}
	return in.Blaze[o][i]
}

// buildModels shifts the template to sysRV on every order, applies the
// blaze and the per-order amplitude, and masks template gaps.
func (e *Engine) buildModels(in ExposureInput, sci [][]float64, sysRV float64) (*orderModels, error) {
	n := len(in.Flux)
	m := &orderModels{
		wave:   make([][]float64, n),
		model:  make([][]float64, n),
		dmodel: make([][]float64, n),
		ddmod:  make([][]float64, n),
		dddmod: make([][]float64, n),
		pixmap: make([]*spectral.PixelMap, n),
	}
	sp := e.splines
	for o := 0; o < n; o++ {
		ww := units.DopplerShift(in.Wave[o], -sysRV)
		npix := len(ww)
		model := make([]float64, npix)
		for i, w := range ww {
			if !sp.Valid(w) {
				model[i] = math.NaN()
				continue
			}
			model[i] = sp.Spline.Predict(w) * e.blaze(in, o, i)
		}
		amp := ScalingRatio(sci[o], model)
		d := make([]float64, npix)
		dd := make([]float64, npix)
		ddd := make([]float64, npix)
		for i, w := range ww {
			model[i] *= amp
			if math.IsNaN(model[i]) {
				d[i], dd[i], ddd[i] = math.NaN(), math.NaN(), math.NaN()
				continue
			}
			b := e.blaze(in, o, i) * amp
			d[i] = sp.DSpline.Predict(w) * b
			dd[i] = sp.DDSpline.Predict(w) * b
			ddd[i] = sp.DDDSpline.Predict(w) * b
		}
		m.wave[o], m.model[o], m.dmodel[o], m.ddmod[o], m.dddmod[o] = ww, model, d, dd, ddd

		pm, err := spectral.NewPixelMap(ww)
		if err != nil {
			return nil, fmt.Errorf("%s: order %d pixel map: %w", in.Name, o, err)
		}
		m.pixmap[o] = pm
	}
	return m, nil
}

// continuumModel is the raw template times blaze, normalised per order to
// the median of the raw science flux.
func (e *Engine) continuumModel(in ExposureInput, wave [][]float64, rawMedian float64) [][]float64 {
	out := make([][]float64, len(wave))
	for o, ww := range wave {
		out[o] = make([]float64, len(ww))
		for i, w := range ww {
			out[o][i] = e.splines.Spline0.Predict(w) * e.blaze(in, o, i)
		}
		med := spectral.NanMedian(out[o])
		for i := range out[o] {
			out[o][i] = out[o][i] / med * rawMedian
		}
	}
	return out
}

// clearDiagnostics resets a line's diagnostics to placeholders but keeps
// its status.
func clearDiagnostics(line *ReferenceLine) {
	status := line.Status
	line.LineDiagnostics = unknownDiagnostics()
	line.Status = status
}

// measureLine fits one line for iteration iter and stores its diagnostics.
// A line found too narrow is still measured in the iteration that flags it
// and skipped from the next one on. Flagged lines never enter the average.
func (e *Engine) measureLine(line *ReferenceLine, iter int, in ExposureInput, sci, rms [][]float64, m *orderModels, model0 [][]float64) {
	if line.Status.Kind == LineExcludedNarrow && line.Status.Iteration < iter {
		clearDiagnostics(line)
		return
	}
	o := line.Order
	ww := m.wave[o]
	pStart := m.pixmap[o].Pixel(line.WaveStart)
	pEnd := m.pixmap[o].Pixel(line.WaveEnd)
	if !spectral.IsFinite(pStart) || !spectral.IsFinite(pEnd) {
		line.LineDiagnostics = unknownDiagnostics()
		line.Status = LineStatus{Kind: LineExcludedEdge, Iteration: iter}
		return
	}
	xStart, xEnd := int(math.Floor(pStart)), int(math.Ceil(pEnd))

	status := LineStatus{Kind: LineActive}
	if line.Status.Kind == LineExcludedNarrow || xEnd-xStart < e.cfg.MinPixWidth {
		status = LineStatus{Kind: LineExcludedNarrow, Iteration: iter}
	}
	if xStart < 0 || xEnd > len(ww)-2 {
		line.LineDiagnostics = unknownDiagnostics()
		if status.Kind != LineExcludedNarrow {
			status = LineStatus{Kind: LineExcludedEdge, Iteration: iter}
		}
		line.Status = status
		return
	}

	weights := edgeWeights(ww, xStart, xEnd, line.WaveStart, line.WaveEnd)
	n := len(weights)
	d := make([]float64, n)
	dd := make([]float64, n)
	ddd := make([]float64, n)
	diff := make([]float64, n)
	var sumW, sumWX, sumRMS float64
	var nRMS int
	for j, w := range weights {
		px := xStart + j
		d[j] = m.dmodel[o][px] * w
		dd[j] = m.ddmod[o][px] * w
		ddd[j] = m.dddmod[o][px] * w
		diff[j] = (sci[o][px] - m.model[o][px]) * w
		sumW += w
		sumWX += w * float64(px)
		if r := rms[o][px] * w; spectral.IsFinite(r) {
			sumRMS += r
			nRMS++
		}
	}
	meanRMS := math.NaN()
	if nRMS > 0 {
		meanRMS = sumRMS / sumW
	}

	diag := unknownDiagnostics()
	diag.MeanXPix = sumWX / sumW
	diag.MeanBlaze = e.blaze(in, o, (xStart+xEnd)/2)
	diag.AmpContinuum = spectral.NanMean(model0[o][xStart : xEnd+1])
	diag.DV, diag.DVRMS = BouchyLine(d, diff, meanRMS)
	diag.DDV, diag.DDVRMS = BouchyLine(dd, diff, meanRMS)
	diag.DDDV, diag.DDDVRMS = BouchyLine(ddd, diff, meanRMS)
	diag.RMSRatio = spectral.NanStd(diff) / meanRMS
	diag.NPixLine = n
	chi := make([]float64, n)
	for j := range diff {
		chi[j] = (diff[j] / meanRMS) * (diff[j] / meanRMS)
	}
	diag.Chi2 = spectral.NanSum(chi)
	diag.Status = status
	line.LineDiagnostics = diag
}

// edgeWeights returns the pixel weights of a line spanning pixels
// xStart..xEnd. Interior pixels weigh 1; the first pixel is weighted by
// the fraction of it after waveStart and the last by the fraction before
// waveEnd. The caller guarantees xEnd+1 is a valid index.
func edgeWeights(ww []float64, xStart, xEnd int, waveStart, waveEnd float64) []float64 {
	w := make([]float64, xEnd-xStart+1)
	for i := range w {
		w[i] = 1
	}
	if ww[xStart] < waveStart {
		w[0] = (ww[xStart+1] - waveStart) / (ww[xStart+1] - ww[xStart])
	}
	if ww[xEnd+1] > waveEnd {
		last := len(w) - 1
		w[last] = 1 - (ww[xEnd]-waveEnd)/(ww[xEnd+1]-ww[xEnd])
	}
	for i := range w {
		w[i] = math.Max(0, math.Min(1, w[i]))
	}
	return w
}

// aggregateLines combines the active lines' first-derivative shifts into
// one velocity update with the odd-ratio mean. Lines with non-finite
// shifts or |dv/dvrms| >= NSigThreshold are left out.
func aggregateLines(lines []ReferenceLine, cfg Config) (rvMean, bulkError, rmsRatio float64, used int) {
	var nsig, dv, dvrms []float64
	for _, l := range lines {
		if l.Status.Kind != LineActive {
			continue
		}
		ns := l.DV / l.DVRMS
		if !spectral.IsFinite(ns) || math.Abs(ns) >= cfg.NSigThreshold {
			continue
		}
		nsig = append(nsig, ns)
		dv = append(dv, l.DV)
		dvrms = append(dvrms, l.DVRMS)
	}
	if len(dv) == 0 {
		return math.NaN(), math.NaN(), math.NaN(), 0
	}
	rvMean, bulkError = spectral.OddRatioMean(dv, dvrms, cfg.OddRatio, cfg.OddRatioIters)
	return rvMean, bulkError, spectral.EstimateSigma(nsig), len(dv)
}

// chi2ValidCDF is the probability that a chi-square variable with npix
// degrees of freedom exceeds chi2.
func chi2ValidCDF(chi2 float64, npix int) float64 {
	if npix <= 0 || !spectral.IsFinite(chi2) {
		return math.NaN()
	}
	return 1 - distuv.ChiSquared{K: float64(npix)}.CDF(chi2)
}
