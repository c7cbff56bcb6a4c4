package spectral

import "fmt"

// InsufficientDataError reports that too few valid samples remained to
// build an interpolant or model.
type InsufficientDataError struct {
	What string // what was being built
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d valid samples, need %d", e.What, e.Have, e.Need)
}
