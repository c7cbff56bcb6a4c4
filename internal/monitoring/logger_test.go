package monitoring

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestOrDiscard(t *testing.T) {
	// nil must become a callable no-op
	f := OrDiscard(nil)
	if f == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	f("test message")

	called := false
	custom := Logf(func(format string, v ...interface{}) {
		called = true
	})
	OrDiscard(custom)("test")
	if !called {
		t.Error("Custom logger was not called")
	}
}

func TestWith_PrefixesComponent(t *testing.T) {
	var got []string
	base := Logf(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	base.With("LineFit")("iteration %d", 3)

	if len(got) != 1 || got[0] != "[LineFit] iteration 3" {
		t.Errorf("unexpected log output: %q", got)
	}
}

func TestWith_NilLogger(t *testing.T) {
	var f Logf
	// This should not panic
	f.With("CCF")("ignored %s", "value")
}

func TestNew_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	New(&buf)("e-width = %.2f m/s", 2500.0)

	if !strings.Contains(buf.String(), "e-width = 2500.00 m/s") {
		t.Errorf("writer output = %q", buf.String())
	}
}

func TestDefault_NotNil(t *testing.T) {
	if Default() == nil {
		t.Error("Default should not be nil")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Discard()("test message: %s", "value")
}
