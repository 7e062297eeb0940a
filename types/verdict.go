package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Verdict represents the judging state of a submission or the outcome of a
// single test case.
//
// A submission moves Pending -> Judging -> <terminal> and never leaves a
// terminal state. The six terminal values are the only outcomes a judged
// submission can end in.
type Verdict int

// Supported verdict values.
const (
	// VerdictPending indicates the submission has been received
	// but has not been handed to the judge yet.
	VerdictPending Verdict = iota

	// VerdictJudging indicates the submission is currently being judged.
	VerdictJudging

	// VerdictAccepted indicates the submission passed all test cases.
	VerdictAccepted

	// VerdictWrongAnswer indicates the submission produced incorrect output.
	VerdictWrongAnswer

	// VerdictTimeLimitExceeded indicates the submission exceeded the time limit.
	VerdictTimeLimitExceeded

	// VerdictMemoryLimitExceeded indicates the submission exceeded the memory limit.
	VerdictMemoryLimitExceeded

	// VerdictRuntimeError indicates a runtime error occurred during execution,
	// or that the judge could not be consulted.
	VerdictRuntimeError

	// VerdictCompilationError indicates the submission failed to compile.
	VerdictCompilationError
)

// ErrIllegalTransition is returned when a verdict change is not permitted
// by the submission state machine.
var ErrIllegalTransition = errors.New("illegal verdict transition")

// TerminalVerdicts lists every verdict a judged submission may end in.
var TerminalVerdicts = []Verdict{
	VerdictAccepted,
	VerdictWrongAnswer,
	VerdictTimeLimitExceeded,
	VerdictMemoryLimitExceeded,
	VerdictRuntimeError,
	VerdictCompilationError,
}

// IsTerminal reports whether v is a final judging outcome.
func (v Verdict) IsTerminal() bool {
	return v >= VerdictAccepted && v <= VerdictCompilationError
}

// IsValid reports whether v is one of the known verdict values.
func (v Verdict) IsValid() bool {
	return v >= VerdictPending && v <= VerdictCompilationError
}

// Transition returns next if moving from v to next is legal.
func (v Verdict) Transition(next Verdict) (Verdict, error) {
	switch {
	case v == VerdictPending && next == VerdictJudging:
		return next, nil
	case v == VerdictJudging && next.IsTerminal():
		return next, nil
	default:
		return v, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v, next)
	}
}

// String returns the compact string representation of the verdict
// used in API responses and logs.
func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "PENDING"
	case VerdictJudging:
		return "JUDGING"
	case VerdictAccepted:
		return "AC"
	case VerdictWrongAnswer:
		return "WA"
	case VerdictTimeLimitExceeded:
		return "TLE"
	case VerdictMemoryLimitExceeded:
		return "MLE"
	case VerdictRuntimeError:
		return "RE"
	case VerdictCompilationError:
		return "CE"
	default:
		return "UNKNOWN"
	}
}

// Name returns the long, human-readable verdict name. It matches the
// strings spoken by the execution judge.
func (v Verdict) Name() string {
	switch v {
	case VerdictPending:
		return "Pending"
	case VerdictJudging:
		return "Judging"
	case VerdictAccepted:
		return "Accepted"
	case VerdictWrongAnswer:
		return "Wrong Answer"
	case VerdictTimeLimitExceeded:
		return "Time Limit Exceeded"
	case VerdictMemoryLimitExceeded:
		return "Memory Limit Exceeded"
	case VerdictRuntimeError:
		return "Runtime Error"
	case VerdictCompilationError:
		return "Compilation Error"
	default:
		return "Unknown"
	}
}

// ParseVerdict recognises compact codes ("AC") and long names ("Accepted"),
// case-insensitively. Unknown strings are rejected.
func ParseVerdict(s string) (Verdict, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for v := VerdictPending; v <= VerdictCompilationError; v++ {
		if strings.EqualFold(s, v.String()) || strings.EqualFold(s, v.Name()) {
			return v, true
		}
	}
	return 0, false
}

// FromJudge maps a verdict string reported by the execution judge to a
// terminal verdict. Anything unrecognised, or a non-terminal value, falls
// back to VerdictRuntimeError.
func FromJudge(s string) Verdict {
	v, ok := ParseVerdict(s)
	if !ok || !v.IsTerminal() {
		return VerdictRuntimeError
	}
	return v
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("verdict must be a string: %w", err)
	}
	parsed, ok := ParseVerdict(raw)
	if !ok {
		return fmt.Errorf("unknown verdict %q", raw)
	}
	*v = parsed
	return nil
}
