package services

import (
	"context"
	"testing"
	"time"

	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/logging"
	"github.com/jjudge-oj/judgeserver/internal/scoring"
	"github.com/jjudge-oj/judgeserver/internal/storage"
	"github.com/jjudge-oj/judgeserver/internal/store/memstore"
	"github.com/jjudge-oj/judgeserver/types"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memstore.Store
	objects     *storage.Storage
	recorder    *events.Recorder
	problems    *ProblemService
	submissions *SubmissionService
	contests    *ContestService
}

func newFixture(t *testing.T, client judge.Client, retries int) *fixture {
	t.Helper()
	log := logging.Discard()
	st := memstore.New(func() time.Time { return fixedNow })
	objects := storage.NewStorage(storage.NewMemoryStorage("test"))
	recorder := &events.Recorder{}

	problems := NewProblemService(st.Problems, objects, log)
	submissions := NewSubmissionService(st.Submissions, problems, client, recorder, log, retries)
	contests := NewContestService(st.Contests, submissions, scoring.Fixed{}, log)
	contests.now = func() time.Time { return fixedNow }

	return &fixture{
		store:       st,
		objects:     objects,
		recorder:    recorder,
		problems:    problems,
		submissions: submissions,
		contests:    contests,
	}
}

func (f *fixture) seedProblem(t *testing.T, authorID int, testcases ...types.Testcase) types.Problem {
	t.Helper()
	problem, err := f.store.Problems.Create(context.Background(), types.Problem{
		AuthorID:  authorID,
		Title:     "A + B",
		Testcases: testcases,
	})
	if err != nil {
		t.Fatalf("seed problem: %v", err)
	}
	return problem
}

func sampleTestcases() []types.Testcase {
	return []types.Testcase{
		{Input: "1 2", Output: "3", Visible: true},
		{Input: "5 5", Output: "10"},
		{Input: "-1 1", Output: "0"},
	}
}

// verdictJudge answers every request with verdict on all testcases.
func verdictJudge(verdict string) judge.Func {
	return func(ctx context.Context, req judge.Request) (judge.Result, error) {
		v := types.FromJudge(verdict)
		result := judge.Result{Verdict: v, TotalTests: len(req.Testcases)}
		for i, tc := range req.Testcases {
			result.TestResults = append(result.TestResults, judge.TestResult{
				TestCase:       i + 1,
				Verdict:        verdict,
				Input:          tc.Input,
				ExpectedOutput: tc.Output,
				ActualOutput:   tc.Output,
				ExecutionTime:  float64(10 * (i + 1)),
			})
			if v == types.VerdictAccepted {
				result.PassedTests++
			}
		}
		return result, nil
	}
}

// codeJudge accepts code "ok" and rejects everything else.
func codeJudge() judge.Func {
	accept, reject := verdictJudge("Accepted"), verdictJudge("Wrong Answer")
	return func(ctx context.Context, req judge.Request) (judge.Result, error) {
		if req.Code == "ok" {
			return accept(ctx, req)
		}
		return reject(ctx, req)
	}
}
