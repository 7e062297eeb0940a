// Package visibility decides which testcases and per-test results a caller
// may see. Filtering happens at the read boundary and never touches stored
// records.
package visibility

import "github.com/jjudge-oj/judgeserver/types"

// Viewer identifies the caller of a read.
type Viewer struct {
	UserID int
	Role   types.Role
}

// CanSeeHidden reports whether the viewer may see hidden testcases of a
// problem written by authorID.
func CanSeeHidden(viewer Viewer, authorID int) bool {
	if viewer.Role == types.RoleAdmin {
		return true
	}
	return authorID > 0 && viewer.UserID == authorID
}

// Testcases returns the testcases the viewer may see. Hidden entries are
// dropped entirely.
func Testcases(testcases []types.Testcase, viewer Viewer, authorID int) []types.Testcase {
	out := make([]types.Testcase, 0, len(testcases))
	privileged := CanSeeHidden(viewer, authorID)
	for _, tc := range testcases {
		if privileged || tc.Visible {
			out = append(out, tc)
		}
	}
	return out
}

// Results returns the per-test results the viewer may see. Results of hidden
// testcases are dropped entirely, including their inputs and outputs.
func Results(results []types.TestcaseResult, viewer Viewer, authorID int) []types.TestcaseResult {
	out := make([]types.TestcaseResult, 0, len(results))
	privileged := CanSeeHidden(viewer, authorID)
	for _, r := range results {
		if privileged || r.Visible {
			out = append(out, r)
		}
	}
	return out
}

// Problem returns a copy of problem with its testcases filtered for viewer.
func Problem(problem types.Problem, viewer Viewer) types.Problem {
	problem.Testcases = Testcases(problem.Testcases, viewer, problem.AuthorID)
	if problem.TestcaseBundle != nil && !CanSeeHidden(viewer, problem.AuthorID) {
		problem.TestcaseBundle = nil
	}
	return problem
}

// Submission returns a copy of submission with its results filtered for
// viewer. authorID is the author of the submission's problem.
func Submission(submission types.Submission, viewer Viewer, authorID int) types.Submission {
	submission.TestcaseResults = Results(submission.TestcaseResults, viewer, authorID)
	return submission
}
