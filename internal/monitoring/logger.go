// Package monitoring provides the diagnostic logging hook handed to every
// engine component. There is no package-level logger; callers pass a Logf
// value explicitly and may redirect or mute it per component.
package monitoring

import (
	"io"
	"log"
)

// Logf is a printf-shaped diagnostic sink.
type Logf func(format string, v ...interface{})

// Default returns a Logf backed by the standard logger (log.Printf).
func Default() Logf {
	return log.Printf
}

// Discard returns a no-op Logf.
func Discard() Logf {
	return func(string, ...interface{}) {}
}

// New returns a Logf writing to w with the standard log flags.
func New(w io.Writer) Logf {
	return log.New(w, "", log.LstdFlags).Printf
}

// OrDiscard returns f, or a no-op logger when f is nil.
func OrDiscard(f Logf) Logf {
	if f == nil {
		return Discard()
	}
	return f
}

// With returns a Logf that prefixes every message with "[component] ".
// Calling With on a nil Logf yields a no-op logger.
func (f Logf) With(component string) Logf {
	if f == nil {
		return Discard()
	}
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		f(prefix+format, v...)
	}
}
