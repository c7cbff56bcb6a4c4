package lbl

import (
	"fmt"

	"github.com/banshee-data/lbl/internal/spectral"
)

// InsufficientDataError reports that too few valid samples remain to build
// a required interpolant.
type InsufficientDataError = spectral.InsufficientDataError

// FitConvergenceError reports that the coarse CCF Gaussian fit did not
// produce a usable result. The exposure should be flagged and skipped.
type FitConvergenceError struct {
	Reason string
}

func (e *FitConvergenceError) Error() string {
	return fmt.Sprintf("ccf gaussian fit did not converge: %s", e.Reason)
}
