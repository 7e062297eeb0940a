// Package stats derives user statistics and contest leaderboards from
// persisted submissions. Every function is pure over its inputs.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

// UserStats summarises a user's submissions. Only terminal submissions are
// counted; records still pending or judging are ignored.
func UserStats(submissions []types.Submission) types.UserStats {
	out := types.UserStats{VerdictBreakdown: make(map[string]int)}
	solved := make(map[int]struct{})

	for _, sub := range submissions {
		if !sub.Verdict.IsTerminal() {
			continue
		}
		out.TotalSubmissions++
		out.VerdictBreakdown[sub.Verdict.String()]++
		if sub.Verdict == types.VerdictAccepted {
			out.AcceptedSubmissions++
			solved[sub.ProblemID] = struct{}{}
		}
	}

	out.SolvedProblems = len(solved)
	out.AcceptanceRate = AcceptanceRate(out.AcceptedSubmissions, out.TotalSubmissions)
	return out
}

// AcceptanceRate returns accepted/total as a percentage rounded to two
// decimals. It is 0 when total is 0.
func AcceptanceRate(accepted, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(accepted) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// Leaderboard ranks the contest's participants. Anyone with a contest
// submission but no registration is ranked too. Rows are ordered by solved
// count (desc), penalty (asc), earliest accepted time (asc, no solves last)
// and user id; rows equal on the first three share a rank.
func Leaderboard(contest types.Contest, submissions []types.Submission) []types.LeaderboardEntry {
	problemIndex := make(map[int]int, len(contest.Problems))
	problems := orderedProblems(contest.Problems)
	for i, p := range problems {
		problemIndex[p.ProblemID] = i
	}

	rows := make(map[int]*types.LeaderboardEntry)
	row := func(userID int) *types.LeaderboardEntry {
		if entry, ok := rows[userID]; ok {
			return entry
		}
		entry := &types.LeaderboardEntry{UserID: userID, Problems: make([]types.ProblemStand, len(problems))}
		for i, p := range problems {
			entry.Problems[i].ProblemID = p.ProblemID
		}
		rows[userID] = entry
		return entry
	}
	for _, p := range contest.Participants {
		row(p.UserID)
	}

	ordered := contestSubmissions(contest.ID, submissions)
	for _, sub := range ordered {
		idx, ok := problemIndex[sub.ProblemID]
		if !ok {
			continue
		}
		entry := row(sub.UserID)
		stand := &entry.Problems[idx]
		if stand.Solved {
			continue
		}
		stand.Attempts++
		if sub.Verdict != types.VerdictAccepted {
			continue
		}

		solvedAt := sub.SubmittedAt
		stand.Solved = true
		stand.SolvedAt = &solvedAt
		stand.Penalty = sub.Contest.Penalty
		stand.Points = sub.Contest.Points
		stand.FirstSolve = sub.Contest.IsFirstSolve

		entry.Solved++
		entry.Penalty += stand.Penalty
		entry.Score += stand.Points
		if entry.FirstSolveAt == nil || solvedAt.Before(*entry.FirstSolveAt) {
			at := solvedAt
			entry.FirstSolveAt = &at
		}
	}

	out := make([]types.LeaderboardEntry, 0, len(rows))
	for _, entry := range rows {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareStanding(out[i], out[j]); c != 0 {
			return c < 0
		}
		return out[i].UserID < out[j].UserID
	})

	for i := range out {
		if i > 0 && compareStanding(out[i-1], out[i]) == 0 {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

// RankOf returns the rank of userID in a leaderboard, or 0.
func RankOf(board []types.LeaderboardEntry, userID int) int {
	for _, entry := range board {
		if entry.UserID == userID {
			return entry.Rank
		}
	}
	return 0
}

func compareStanding(a, b types.LeaderboardEntry) int {
	switch {
	case a.Solved != b.Solved:
		if a.Solved > b.Solved {
			return -1
		}
		return 1
	case a.Penalty != b.Penalty:
		if a.Penalty < b.Penalty {
			return -1
		}
		return 1
	}
	return compareSolveTime(a.FirstSolveAt, b.FirstSolveAt)
}

func compareSolveTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// contestSubmissions returns the judged submissions of contestID in arrival
// order.
func contestSubmissions(contestID int, submissions []types.Submission) []types.Submission {
	out := make([]types.Submission, 0, len(submissions))
	for _, sub := range submissions {
		if sub.Contest == nil || sub.Contest.ContestID != contestID || !sub.Verdict.IsTerminal() {
			continue
		}
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		if out[i].Contest.AttemptNumber != out[j].Contest.AttemptNumber {
			return out[i].Contest.AttemptNumber < out[j].Contest.AttemptNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func orderedProblems(problems []types.ContestProblem) []types.ContestProblem {
	out := append([]types.ContestProblem(nil), problems...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
