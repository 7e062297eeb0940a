package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/logging"
	"github.com/jjudge-oj/judgeserver/internal/storage"
	"github.com/jjudge-oj/judgeserver/internal/visibility"
	"github.com/jjudge-oj/judgeserver/types"
)

func TestProblemImportAndResolve(t *testing.T) {
	var judged []judge.Testcase
	client := judge.Func(func(ctx context.Context, req judge.Request) (judge.Result, error) {
		judged = req.Testcases
		return verdictJudge("Accepted")(ctx, req)
	})
	f := newFixture(t, client, 0)
	ctx := context.Background()
	data := buildBundle(t, map[string]string{
		"1.in": "1 2", "1.out": "3",
		"2.in": "2 2", "2.out": "4",
	})

	problem, err := f.problems.Import(ctx, types.Problem{Title: "Sum", AuthorID: 7, TimeLimit: 1000}, "sum.tar.gz", data, []int{1})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if problem.TestcaseBundle == nil || problem.TestcaseBundle.ObjectKey != storage.BundleKey(problem.ID, problem.TestcaseBundle.SHA256) {
		t.Fatalf("unexpected bundle %+v", problem.TestcaseBundle)
	}

	stored, err := f.objects.ReadAll(ctx, problem.TestcaseBundle.ObjectKey)
	if err != nil || len(stored) != len(data) {
		t.Fatalf("bundle not uploaded: %v", err)
	}

	// A fresh service has an empty cache and must read the bundle back.
	fresh := NewProblemService(f.store.Problems, f.objects, logging.Discard())
	resolved, err := fresh.Resolve(ctx, problem.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Testcases) != 2 || !resolved.Testcases[0].Visible || resolved.Testcases[1].Visible {
		t.Fatalf("unexpected resolved testcases %+v", resolved.Testcases)
	}

	view, err := fresh.View(ctx, problem.ID, visibility.Viewer{UserID: 1, Role: types.RoleUser})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(view.Testcases) != 1 || view.TestcaseBundle != nil {
		t.Fatalf("user view leaked hidden data: %+v", view)
	}

	sub, err := f.submissions.Submit(ctx, 1, SubmitRequest{ProblemID: problem.ID, Language: "python", Code: "print(sum(map(int, input().split())))"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Verdict != types.VerdictAccepted || len(judged) != 2 {
		t.Fatalf("expected bundled testcases to be judged, got %s with %d testcases", sub.Verdict, len(judged))
	}
}

func TestProblemReplaceBundle(t *testing.T) {
	f := newFixture(t, verdictJudge("Accepted"), 0)
	ctx := context.Background()
	first := buildBundle(t, map[string]string{"1.in": "1", "1.out": "1"})
	problem, err := f.problems.Import(ctx, types.Problem{Title: "Echo"}, "echo.tar.gz", first, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if err := f.problems.ReplaceTestcaseBundle(ctx, problem.ID, "echo.tar.gz", first, nil); err != nil {
		t.Fatalf("ReplaceTestcaseBundle (same): %v", err)
	}

	second := buildBundle(t, map[string]string{"1.in": "1", "1.out": "1", "2.in": "2", "2.out": "2"})
	if err := f.problems.ReplaceTestcaseBundle(ctx, problem.ID, "echo.tar.gz", second, []int{2}); err != nil {
		t.Fatalf("ReplaceTestcaseBundle: %v", err)
	}
	resolved, err := f.problems.Resolve(ctx, problem.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Testcases) != 2 || !resolved.Testcases[1].Visible {
		t.Fatalf("unexpected testcases after replace %+v", resolved.Testcases)
	}
}

func TestProblemResolveWithoutStorage(t *testing.T) {
	f := newFixture(t, verdictJudge("Accepted"), 0)
	problem, err := f.store.Problems.Create(context.Background(), types.Problem{Title: "Remote"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.store.Problems.SetTestcaseBundle(context.Background(), problem.ID, types.TestcaseBundle{ObjectKey: "problems/1/x.tar.gz", Count: 1}); err != nil {
		t.Fatalf("SetTestcaseBundle: %v", err)
	}

	svc := NewProblemService(f.store.Problems, nil, logging.Discard())
	if _, err := svc.Resolve(context.Background(), problem.ID); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected ErrStorageDisabled, got %v", err)
	}
	if _, err := svc.Import(context.Background(), types.Problem{Title: "x"}, "x.tar.gz", []byte{1}, nil); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected ErrStorageDisabled from Import, got %v", err)
	}
}
