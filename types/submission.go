package types

import "time"

// PenaltyMinutesPerAttempt is the time penalty charged for every rejected
// attempt that precedes an accepted contest submission.
const PenaltyMinutesPerAttempt = 20

// Submission represents a user's submission to a problem.
// It contains source code, execution metadata, and the judging outcome.
// Contest submissions additionally carry a ContestEntry.
type Submission struct {
	// ID is the unique identifier of the submission.
	ID int64 `json:"id" db:"id"`

	// ProblemID identifies the problem this submission is for.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// UserID identifies the user who made the submission.
	UserID int `json:"user_id" db:"user_id"`

	// Language is the programming language used.
	Language Language `json:"language" db:"language"`

	// Code is the source code submitted by the user.
	Code string `json:"code" db:"code"`

	// Verdict is the current judging state of the submission.
	Verdict Verdict `json:"verdict" db:"verdict"`

	// ExecutionTime is the execution time reported by the judge,
	// expressed in milliseconds.
	ExecutionTime int64 `json:"execution_time" db:"execution_time"`

	// MemoryUsed is the peak memory usage reported by the judge,
	// expressed in megabytes.
	MemoryUsed int64 `json:"memory_used" db:"memory_used"`

	// TestsPassed is the number of test cases successfully passed.
	TestsPassed int `json:"tests_passed" db:"tests_passed"`

	// TestsTotal is the total number of test cases executed.
	TestsTotal int `json:"tests_total" db:"tests_total"`

	// ErrorMessage describes why judging failed, if it did.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// CompilerOutput holds diagnostic details returned by the judge.
	CompilerOutput string `json:"compiler_output,omitempty" db:"compiler_output"`

	// TestcaseResults holds per-test-case execution results.
	// This field may be omitted for summary or list views.
	TestcaseResults []TestcaseResult `json:"testcase_results" db:"testcase_results"`

	// Contest is set for submissions made within a contest.
	Contest *ContestEntry `json:"contest,omitempty" db:"-"`

	// SubmittedAt is the timestamp when the submission was created.
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`

	// UpdatedAt is the timestamp when the submission was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContestEntry holds the contest-specific scoring fields of a submission.
type ContestEntry struct {
	// ContestID identifies the contest the submission was made in.
	ContestID int `json:"contest_id" db:"contest_id"`

	// AttemptNumber is the 1-based attempt count for the
	// (contest, user, problem) triple, in arrival order.
	AttemptNumber int `json:"attempt_number" db:"attempt_number"`

	// IsFirstSolve is true for the single earliest accepted submission of
	// the problem within the contest, across all participants.
	IsFirstSolve bool `json:"is_first_solve" db:"is_first_solve"`

	// Points is the score awarded by the contest scoring policy.
	Points int `json:"points" db:"points"`

	// Penalty is the time penalty in minutes. It is only non-zero for
	// accepted submissions.
	Penalty int `json:"penalty" db:"-"`
}

// PenaltyMinutes returns the penalty for an attempt with the given verdict.
func PenaltyMinutes(attemptNumber int, verdict Verdict) int {
	if verdict != VerdictAccepted || attemptNumber < 1 {
		return 0
	}
	return (attemptNumber - 1) * PenaltyMinutesPerAttempt
}

// TestcaseResult represents the result of executing a single test case
// as part of judging a submission.
type TestcaseResult struct {
	// Index is the 1-based position of the testcase in the problem.
	Index int `json:"index"`

	// Verdict is the outcome of this specific test case.
	Verdict Verdict `json:"verdict"`

	// Input is the input provided to the program for this test case.
	Input string `json:"input,omitempty"`

	// ExpectedOutput is the correct output expected for this test case.
	ExpectedOutput string `json:"expected_output,omitempty"`

	// ActualOutput is the output produced by the user's program.
	ActualOutput string `json:"actual_output,omitempty"`

	// ExecutionTime is the time consumed by this test case, in milliseconds.
	ExecutionTime int64 `json:"execution_time"`

	// Error contains runtime or system error messages, if any.
	Error string `json:"error,omitempty"`

	// Visible mirrors the visibility of the underlying testcase.
	Visible bool `json:"visible"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	UserID    int
	ProblemID int
	ContestID int
	Verdict   *Verdict
	// PracticeOnly excludes contest submissions.
	PracticeOnly bool
}
