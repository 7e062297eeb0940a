// Package judge talks to the external execution judge. A Client performs
// exactly one call per Judge invocation and reports transport problems as a
// typed *Error; it never retries.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

// DefaultTimeout bounds a judge call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a judge response is read.
const maxResponseBytes = 8 << 20

// Failure kinds. Test with errors.Is.
var (
	ErrTimeout           = errors.New("judge timed out")
	ErrUnreachable       = errors.New("judge unreachable")
	ErrMalformedResponse = errors.New("malformed judge response")
)

// Error is a failed judge call. Kind is one of ErrTimeout, ErrUnreachable or
// ErrMalformedResponse.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client submits code to the execution judge.
type Client interface {
	Judge(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to the Client interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Judge(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Testcase is one input/expected-output pair sent to the judge.
type Testcase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Request is the payload of a judge call.
type Request struct {
	// Extension is the source extension of the language (c, cpp, java, py).
	Extension string     `json:"extension"`
	Code      string     `json:"code"`
	Testcases []Testcase `json:"testcases"`
	// TimeLimit is in milliseconds, MemoryLimit in megabytes.
	TimeLimit   int64 `json:"timeLimit"`
	MemoryLimit int64 `json:"memoryLimit"`
}

// TestResult is the judge's report for one testcase.
type TestResult struct {
	TestCase       int     `json:"testCase"`
	Verdict        string  `json:"verdict"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	ExecutionTime  float64 `json:"executionTime"`
	Error          string  `json:"error"`
}

// Result is a judge-reported outcome. Verdict is always terminal.
type Result struct {
	Verdict       types.Verdict
	PassedTests   int
	TotalTests    int
	TestResults   []TestResult
	Error         string
	Details       string
	ExecutionTime int64
	MemoryUsed    int64
}

type response struct {
	Verdict       string       `json:"verdict"`
	PassedTests   int          `json:"passedTests"`
	TotalTests    int          `json:"totalTests"`
	TestResults   []TestResult `json:"testResults"`
	Error         string       `json:"error"`
	Details       string       `json:"details"`
	ExecutionTime float64      `json:"executionTime"`
	MemoryUsed    float64      `json:"memoryUsed"`
}

// NewRequest builds a judge request for a problem's testcases.
func NewRequest(language types.Language, code string, testcases []types.Testcase, timeLimit, memoryLimit int64) Request {
	req := Request{
		Extension:   language.Extension(),
		Code:        code,
		Testcases:   make([]Testcase, len(testcases)),
		TimeLimit:   timeLimit,
		MemoryLimit: memoryLimit,
	}
	for i, tc := range testcases {
		req.Testcases[i] = Testcase{Input: tc.Input, Output: tc.Output}
	}
	return req
}

// decodeResult parses a judge response body. A body without a recognisable
// terminal verdict is malformed.
func decodeResult(data []byte) (Result, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, &Error{Kind: ErrMalformedResponse, Err: err}
	}
	verdict, ok := types.ParseVerdict(resp.Verdict)
	if !ok || !verdict.IsTerminal() {
		return Result{}, &Error{Kind: ErrMalformedResponse, Err: fmt.Errorf("unrecognised verdict %q", resp.Verdict)}
	}

	result := Result{
		Verdict:       verdict,
		PassedTests:   resp.PassedTests,
		TotalTests:    resp.TotalTests,
		TestResults:   resp.TestResults,
		Error:         resp.Error,
		Details:       resp.Details,
		ExecutionTime: int64(math.Round(resp.ExecutionTime)),
		MemoryUsed:    int64(math.Round(resp.MemoryUsed)),
	}
	if result.ExecutionTime == 0 {
		for _, tr := range resp.TestResults {
			if t := int64(math.Round(tr.ExecutionTime)); t > result.ExecutionTime {
				result.ExecutionTime = t
			}
		}
	}
	return result, nil
}

// classify turns a transport error into an *Error. Deadline expiry is a
// timeout; everything else means the judge could not be reached.
func classify(err error) error {
	var judgeErr *Error
	if errors.As(err, &judgeErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Err: err}
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return &Error{Kind: ErrTimeout, Err: err}
	}
	return &Error{Kind: ErrUnreachable, Err: err}
}
