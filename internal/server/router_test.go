package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/handlers"
	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/logging"
	"github.com/jjudge-oj/judgeserver/internal/scoring"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/internal/store/memstore"
	"github.com/jjudge-oj/judgeserver/types"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID int, role types.Role) string {
	t.Helper()
	claims := handlers.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type testServer struct {
	url   string
	store *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logging.Discard()
	mem := memstore.New(nil)
	client := judge.Func(func(ctx context.Context, req judge.Request) (judge.Result, error) {
		result := judge.Result{Verdict: types.VerdictAccepted, PassedTests: len(req.Testcases), TotalTests: len(req.Testcases)}
		for i := range req.Testcases {
			result.TestResults = append(result.TestResults, judge.TestResult{TestCase: i + 1, Verdict: "Accepted"})
		}
		return result, nil
	})

	problems := services.NewProblemService(mem.Problems, nil, log)
	submissions := services.NewSubmissionService(mem.Submissions, problems, client, &events.Recorder{}, log, 0)
	contests := services.NewContestService(mem.Contests, submissions, scoring.Fixed{}, log)

	srv := httptest.NewServer(NewRouter(Services{Problems: problems, Submissions: submissions, Contests: contests}, testSecret, log))
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, store: mem}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSubmissionRoutes(t *testing.T) {
	srv := newTestServer(t)
	problem, err := srv.store.Problems.Create(context.Background(), types.Problem{
		AuthorID: 7,
		Title:    "Echo",
		Testcases: []types.Testcase{
			{Input: "a", Output: "a", Visible: true},
			{Input: "secret", Output: "secret"},
		},
	})
	if err != nil {
		t.Fatalf("create problem: %v", err)
	}
	user := signToken(t, 1, types.RoleUser)

	if resp := srv.do(t, http.MethodPost, "/submissions", "", services.SubmitRequest{}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp := srv.do(t, http.MethodPost, "/submissions", user, services.SubmitRequest{ProblemID: problem.ID, Language: "py", Code: "print(1)"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown language, got %d", resp.StatusCode)
	}

	resp = srv.do(t, http.MethodPost, "/submissions", user, services.SubmitRequest{ProblemID: problem.ID, Language: "python", Code: "print(input())"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	sub := decodeBody[types.Submission](t, resp)
	if sub.Verdict != types.VerdictAccepted || len(sub.TestcaseResults) != 1 {
		t.Fatalf("expected AC with only the visible result, got %s with %d results", sub.Verdict, len(sub.TestcaseResults))
	}

	path := "/submissions/" + strconv.FormatInt(sub.ID, 10)
	if resp := srv.do(t, http.MethodGet, path, signToken(t, 2, types.RoleUser), nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodGet, path, signToken(t, 7, types.RoleProblemsetter), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for author, got %d", resp.StatusCode)
	}
	if got := decodeBody[types.Submission](t, resp); len(got.TestcaseResults) != 2 {
		t.Fatalf("author should see all results, got %d", len(got.TestcaseResults))
	}

	resp = srv.do(t, http.MethodGet, "/submissions?verdict=AC&problem_id="+strconv.Itoa(problem.ID), user, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if list := decodeBody[handlers.ListResponse[types.Submission]](t, resp); list.Total != 1 {
		t.Fatalf("expected 1 submission, got %d", list.Total)
	}

	resp = srv.do(t, http.MethodGet, "/submissions/stats", user, nil)
	if stats := decodeBody[types.UserStats](t, resp); stats.AcceptedSubmissions != 1 || stats.AcceptanceRate != 100 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	resp = srv.do(t, http.MethodGet, "/problems/"+strconv.Itoa(problem.ID), user, nil)
	if got := decodeBody[types.Problem](t, resp); len(got.Testcases) != 1 {
		t.Fatalf("user should see only visible testcases, got %d", len(got.Testcases))
	}
}

func TestContestRoutes(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	problem, _ := srv.store.Problems.Create(ctx, types.Problem{Title: "Echo", Testcases: []types.Testcase{{Input: "a", Output: "a"}}})
	now := time.Now()
	upcoming, _ := srv.store.Contests.Create(ctx, types.Contest{
		Title:     "Later",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		IsPublic:  true,
		Problems:  []types.ContestProblem{{ProblemID: problem.ID, Points: 100, Order: 1}},
	})
	running, _ := srv.store.Contests.Create(ctx, types.Contest{
		Title:        "Now",
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(time.Hour),
		IsPublic:     true,
		Problems:     []types.ContestProblem{{ProblemID: problem.ID, Points: 100, Order: 1}},
		Participants: []types.Participant{{UserID: 1, RegisteredAt: now.Add(-2 * time.Hour)}},
	})
	user := signToken(t, 1, types.RoleUser)
	contestPath := func(id int, rest string) string { return "/contests/" + strconv.Itoa(id) + rest }

	if resp := srv.do(t, http.MethodPost, contestPath(upcoming.ID, "/register"), user, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on register, got %d", resp.StatusCode)
	}
	if resp := srv.do(t, http.MethodPost, contestPath(upcoming.ID, "/register"), user, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate register, got %d", resp.StatusCode)
	}

	submit := contestPath(running.ID, "/problems/"+strconv.Itoa(problem.ID)+"/submit")
	if resp := srv.do(t, http.MethodPost, submit, signToken(t, 2, types.RoleUser), services.ContestSubmitRequest{Language: "c", Code: "x"}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unregistered user, got %d", resp.StatusCode)
	}
	if resp := srv.do(t, http.MethodPost, contestPath(upcoming.ID, "/problems/"+strconv.Itoa(problem.ID)+"/submit"), user, services.ContestSubmitRequest{Language: "c", Code: "x"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before the contest starts, got %d", resp.StatusCode)
	}

	resp := srv.do(t, http.MethodPost, submit, user, services.ContestSubmitRequest{Language: "c", Code: "x"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	sub := decodeBody[types.Submission](t, resp)
	if sub.Contest == nil || sub.Contest.AttemptNumber != 1 || !sub.Contest.IsFirstSolve || sub.Contest.Points != 100 {
		t.Fatalf("unexpected contest entry %+v", sub.Contest)
	}

	resp = srv.do(t, http.MethodGet, contestPath(running.ID, "/leaderboard"), user, nil)
	board := decodeBody[[]types.LeaderboardEntry](t, resp)
	if len(board) != 1 || board[0].UserID != 1 || board[0].Solved != 1 || board[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	resp = srv.do(t, http.MethodGet, "/contests/history", user, nil)
	history := decodeBody[[]services.ContestHistoryEntry](t, resp)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	if resp := srv.do(t, http.MethodGet, contestPath(999, ""), user, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := srv.do(t, http.MethodPost, "/contests", user, handlers.ContestCreateRequest{Title: "x"}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin create, got %d", resp.StatusCode)
	}
}
