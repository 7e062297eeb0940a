package stats

import (
	"testing"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

func TestUserStatsEmpty(t *testing.T) {
	got := UserStats(nil)
	if got.TotalSubmissions != 0 || got.AcceptanceRate != 0 || got.SolvedProblems != 0 {
		t.Fatalf("unexpected stats for no submissions: %+v", got)
	}
}

func TestUserStatsAcceptanceRate(t *testing.T) {
	var subs []types.Submission
	for i := 0; i < 3; i++ {
		subs = append(subs, types.Submission{ProblemID: 1 + i%2, Verdict: types.VerdictAccepted})
	}
	for i := 0; i < 5; i++ {
		subs = append(subs, types.Submission{ProblemID: 3, Verdict: types.VerdictWrongAnswer})
	}
	subs = append(subs,
		types.Submission{ProblemID: 3, Verdict: types.VerdictTimeLimitExceeded},
		types.Submission{ProblemID: 4, Verdict: types.VerdictCompilationError},
		types.Submission{ProblemID: 4, Verdict: types.VerdictJudging},
	)

	got := UserStats(subs)
	if got.TotalSubmissions != 10 {
		t.Fatalf("expected 10 terminal submissions, got %d", got.TotalSubmissions)
	}
	if got.AcceptanceRate != 30.00 {
		t.Fatalf("expected acceptance rate 30.00, got %v", got.AcceptanceRate)
	}
	if got.SolvedProblems != 2 {
		t.Fatalf("expected 2 solved problems, got %d", got.SolvedProblems)
	}
	if got.VerdictBreakdown["AC"] != 3 || got.VerdictBreakdown["WA"] != 5 || got.VerdictBreakdown["JUDGING"] != 0 {
		t.Fatalf("unexpected breakdown %v", got.VerdictBreakdown)
	}
}

func TestAcceptanceRateRounding(t *testing.T) {
	if got := AcceptanceRate(1, 3); got != 33.33 {
		t.Fatalf("expected 33.33, got %v", got)
	}
	if got := AcceptanceRate(2, 3); got != 66.67 {
		t.Fatalf("expected 66.67, got %v", got)
	}
}

func contestSub(id int64, user, problem, attempt int, verdict types.Verdict, at time.Time) types.Submission {
	entry := &types.ContestEntry{ContestID: 7, AttemptNumber: attempt}
	if verdict == types.VerdictAccepted {
		entry.Points = 100
		entry.Penalty = types.PenaltyMinutes(attempt, verdict)
	}
	return types.Submission{ID: id, UserID: user, ProblemID: problem, Verdict: verdict, SubmittedAt: at, Contest: entry}
}

func TestLeaderboardOrdering(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return start.Add(time.Duration(min) * time.Minute) }

	contest := types.Contest{
		ID: 7,
		Problems: []types.ContestProblem{
			{ProblemID: 11, Points: 100, Order: 1},
			{ProblemID: 12, Points: 100, Order: 2},
		},
		Participants: []types.Participant{{UserID: 1}, {UserID: 2}, {UserID: 3}, {UserID: 4}, {UserID: 5}},
	}

	subs := []types.Submission{
		// user 1: both problems, one wrong attempt first -> penalty 20
		contestSub(1, 1, 11, 1, types.VerdictWrongAnswer, at(1)),
		contestSub(2, 1, 11, 2, types.VerdictAccepted, at(5)),
		contestSub(3, 1, 12, 1, types.VerdictAccepted, at(9)),
		// user 2: both problems, no penalty
		contestSub(4, 2, 11, 1, types.VerdictAccepted, at(3)),
		contestSub(5, 2, 12, 1, types.VerdictAccepted, at(20)),
		// user 3: one problem at minute 4
		contestSub(6, 3, 12, 1, types.VerdictAccepted, at(4)),
		// user 4: one problem at minute 2, extra submissions after solving are ignored
		contestSub(7, 4, 11, 1, types.VerdictAccepted, at(2)),
		contestSub(8, 4, 11, 2, types.VerdictWrongAnswer, at(6)),
		// submissions from another contest are ignored
		{ID: 9, UserID: 5, ProblemID: 11, Verdict: types.VerdictAccepted, SubmittedAt: at(1), Contest: &types.ContestEntry{ContestID: 8, AttemptNumber: 1}},
		// still judging: ignored
		contestSub(10, 5, 12, 1, types.VerdictJudging, at(1)),
	}

	board := Leaderboard(contest, subs)
	if len(board) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(board))
	}

	wantOrder := []int{2, 1, 4, 3, 5}
	for i, want := range wantOrder {
		if board[i].UserID != want {
			t.Fatalf("position %d: expected user %d, got %d (%+v)", i, want, board[i].UserID, board)
		}
		if board[i].Rank != i+1 {
			t.Fatalf("position %d: expected rank %d, got %d", i, i+1, board[i].Rank)
		}
	}

	if board[1].Penalty != 20 || board[1].Score != 200 || board[1].Solved != 2 {
		t.Fatalf("unexpected row for user 1: %+v", board[1])
	}
	if board[2].Problems[0].Attempts != 1 {
		t.Fatalf("attempts after a solve must not count, got %d", board[2].Problems[0].Attempts)
	}
	if board[4].FirstSolveAt != nil || board[4].Solved != 0 {
		t.Fatalf("user without solves should have no solve time: %+v", board[4])
	}
}

func TestLeaderboardTiesShareRank(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	contest := types.Contest{
		ID:           7,
		Problems:     []types.ContestProblem{{ProblemID: 11, Points: 100}},
		Participants: []types.Participant{{UserID: 9}, {UserID: 4}, {UserID: 6}},
	}
	subs := []types.Submission{
		contestSub(1, 9, 11, 1, types.VerdictAccepted, at),
		contestSub(2, 4, 11, 1, types.VerdictAccepted, at),
	}

	board := Leaderboard(contest, subs)
	if board[0].UserID != 4 || board[1].UserID != 9 {
		t.Fatalf("ties should be ordered by user id: %+v", board)
	}
	if board[0].Rank != 1 || board[1].Rank != 1 || board[2].Rank != 3 {
		t.Fatalf("unexpected ranks %d %d %d", board[0].Rank, board[1].Rank, board[2].Rank)
	}
	if RankOf(board, 6) != 3 || RankOf(board, 100) != 0 {
		t.Fatalf("unexpected RankOf results")
	}
}
