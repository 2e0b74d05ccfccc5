// Package testengine generates tests for stored functions, runs them against
// the interpreter with timeouts and an optional worker pool, and caches
// outcomes by term hash.
package testengine

import (
	"fmt"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.testengine")

// Status is the final state of a test.
type Status uint8

const (
	StatusPassed Status = iota + 1
	StatusFailed
	StatusTimeout
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Outcome is Passed, Failed, Timeout or Skipped.
type Outcome interface {
	Status() Status
	String() string
}

// Passed carries the printed result value.
type Passed struct{ Value string }

// Failed carries the runtime or conformance error.
type Failed struct{ Error string }

// Timeout records the limit that was exceeded.
type Timeout struct{ After time.Duration }

// Skipped carries the reason the test was not executed.
type Skipped struct{ Reason string }

func (Passed) Status() Status  { return StatusPassed }
func (Failed) Status() Status  { return StatusFailed }
func (Timeout) Status() Status { return StatusTimeout }
func (Skipped) Status() Status { return StatusSkipped }

func (o Passed) String() string  { return "passed: " + o.Value }
func (o Failed) String() string  { return "failed: " + o.Error }
func (o Timeout) String() string { return "timeout after " + o.After.String() }
func (o Skipped) String() string { return "skipped: " + o.Reason }

// outcomeDetail flattens an outcome for storage.
func outcomeDetail(o Outcome) string {
	switch o := o.(type) {
	case Passed:
		return o.Value
	case Failed:
		return o.Error
	case Timeout:
		return o.After.String()
	case Skipped:
		return o.Reason
	}
	return ""
}

// makeOutcome rebuilds an outcome from its stored form.
func makeOutcome(s Status, detail string) (Outcome, error) {
	switch s {
	case StatusPassed:
		return Passed{Value: detail}, nil
	case StatusFailed:
		return Failed{Error: detail}, nil
	case StatusTimeout:
		d, err := time.ParseDuration(detail)
		if err != nil {
			return nil, fmt.Errorf("timeout outcome: %w", err)
		}
		return Timeout{After: d}, nil
	case StatusSkipped:
		return Skipped{Reason: detail}, nil
	}
	return nil, fmt.Errorf("unknown outcome status %d", s)
}

func parseStatus(s string) (Status, error) {
	for st := StatusPassed; st <= StatusSkipped; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome status %q", s)
}
