// Package memstore keeps problems, contests and submissions in process
// memory. It honours the same contracts as the SQL repositories, including
// gap-free attempt numbers, conditional terminal writes and a single first
// solve per contest problem, and backs tests and --memory server runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/types"
)

// Store groups the in-memory repositories.
type Store struct {
	Problems    *ProblemStore
	Submissions *SubmissionStore
	Contests    *ContestStore
}

// New returns empty repositories. now stamps created records; nil means
// time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		Problems:    &ProblemStore{now: now, problems: make(map[int]types.Problem)},
		Submissions: &SubmissionStore{now: now, submissions: make(map[int64]types.Submission), attempts: make(map[attemptKey]int)},
		Contests:    &ContestStore{now: now, contests: make(map[int]types.Contest)},
	}
}

// ProblemStore is an in-memory problem repository.
type ProblemStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int
	problems map[int]types.Problem
}

func (s *ProblemStore) Get(ctx context.Context, id int) (types.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	problem, ok := s.problems[id]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	return cloneProblem(problem), nil
}

func (s *ProblemStore) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	problem.ID = s.nextID
	problem.CreatedAt = s.now()
	problem.UpdatedAt = problem.CreatedAt
	s.problems[problem.ID] = cloneProblem(problem)
	return problem, nil
}

func (s *ProblemStore) SetTestcaseBundle(ctx context.Context, problemID int, bundle types.TestcaseBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	problem, ok := s.problems[problemID]
	if !ok {
		return store.ErrNotFound
	}
	problem.TestcaseBundle = &bundle
	problem.Testcases = nil
	problem.UpdatedAt = s.now()
	s.problems[problemID] = cloneProblem(problem)
	return nil
}

type attemptKey struct {
	contestID int
	userID    int
	problemID int
}

// SubmissionStore is an in-memory submission repository. A single mutex
// plays the role of both the attempt counter row lock and the per
// (contest, problem) advisory lock.
type SubmissionStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	nextID      int64
	submissions map[int64]types.Submission
	attempts    map[attemptKey]int
}

func (s *SubmissionStore) Get(ctx context.Context, id int64) (types.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submission, ok := s.submissions[id]
	if !ok {
		return types.Submission{}, store.ErrNotFound
	}
	return cloneSubmission(submission), nil
}

func (s *SubmissionStore) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	if err := ctx.Err(); err != nil {
		return types.Submission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	submission = cloneSubmission(submission)
	if submission.Contest != nil {
		key := attemptKey{submission.Contest.ContestID, submission.UserID, submission.ProblemID}
		s.attempts[key]++
		submission.Contest.AttemptNumber = s.attempts[key]
	}
	s.nextID++
	submission.ID = s.nextID
	submission.SubmittedAt = s.now()
	submission.UpdatedAt = submission.SubmittedAt
	s.submissions[submission.ID] = submission
	return cloneSubmission(submission), nil
}

func (s *SubmissionStore) Finalize(ctx context.Context, submission types.Submission) (types.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeLocked(submission)
}

func (s *SubmissionStore) FinalizeContest(ctx context.Context, submission types.Submission, claimFirstSolve bool) (types.Submission, error) {
	if submission.Contest == nil {
		return types.Submission{}, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	submission = cloneSubmission(submission)
	submission.Contest.IsFirstSolve = false
	if claimFirstSolve && submission.Verdict == types.VerdictAccepted {
		taken := false
		for id, other := range s.submissions {
			if id == submission.ID || other.Contest == nil || other.ProblemID != submission.ProblemID ||
				other.Contest.ContestID != submission.Contest.ContestID {
				continue
			}
			if other.Contest.IsFirstSolve ||
				(other.Verdict == types.VerdictAccepted && other.SubmittedAt.Before(submission.SubmittedAt)) {
				taken = true
				break
			}
		}
		submission.Contest.IsFirstSolve = !taken
	}
	return s.finalizeLocked(submission)
}

func (s *SubmissionStore) finalizeLocked(submission types.Submission) (types.Submission, error) {
	if !submission.Verdict.IsTerminal() {
		return types.Submission{}, types.ErrIllegalTransition
	}
	stored, ok := s.submissions[submission.ID]
	if !ok {
		return types.Submission{}, store.ErrNotFound
	}
	if stored.Verdict.IsTerminal() {
		return types.Submission{}, store.ErrAlreadyFinal
	}

	// Identity fields are immutable; only the judging outcome changes.
	stored.Verdict = submission.Verdict
	stored.ExecutionTime = submission.ExecutionTime
	stored.MemoryUsed = submission.MemoryUsed
	stored.TestsPassed = submission.TestsPassed
	stored.TestsTotal = submission.TestsTotal
	stored.ErrorMessage = submission.ErrorMessage
	stored.CompilerOutput = submission.CompilerOutput
	stored.TestcaseResults = append([]types.TestcaseResult(nil), submission.TestcaseResults...)
	if stored.Contest != nil && submission.Contest != nil {
		stored.Contest.IsFirstSolve = submission.Contest.IsFirstSolve
		stored.Contest.Points = submission.Contest.Points
		stored.Contest.Penalty = submission.Contest.Penalty
	}
	stored.UpdatedAt = s.now()
	s.submissions[stored.ID] = stored
	return cloneSubmission(stored), nil
}

func (s *SubmissionStore) List(ctx context.Context, filter types.SubmissionFilter, offset, limit int) ([]types.Submission, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	all, err := s.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset >= total {
		return []types.Submission{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (s *SubmissionStore) ListAll(ctx context.Context, filter types.SubmissionFilter) ([]types.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Submission, 0)
	for _, sub := range s.submissions {
		if matches(sub, filter) {
			out = append(out, cloneSubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matches(sub types.Submission, filter types.SubmissionFilter) bool {
	if filter.UserID > 0 && sub.UserID != filter.UserID {
		return false
	}
	if filter.ProblemID > 0 && sub.ProblemID != filter.ProblemID {
		return false
	}
	if filter.ContestID > 0 && (sub.Contest == nil || sub.Contest.ContestID != filter.ContestID) {
		return false
	}
	if filter.PracticeOnly && sub.Contest != nil {
		return false
	}
	if filter.Verdict != nil && sub.Verdict != *filter.Verdict {
		return false
	}
	return true
}

// ContestStore is an in-memory contest repository.
type ContestStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int
	contests map[int]types.Contest
}

func (s *ContestStore) Get(ctx context.Context, id int) (types.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[id]
	if !ok {
		return types.Contest{}, store.ErrNotFound
	}
	return cloneContest(contest), nil
}

func (s *ContestStore) Create(ctx context.Context, contest types.Contest) (types.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	contest.ID = s.nextID
	contest.CreatedAt = s.now()
	s.contests[contest.ID] = cloneContest(contest)
	return cloneContest(contest), nil
}

func (s *ContestStore) AddParticipant(ctx context.Context, contestID, userID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contest, ok := s.contests[contestID]
	if !ok {
		return store.ErrNotFound
	}
	if contest.HasParticipant(userID) {
		return store.ErrConflict
	}
	if contest.MaxParticipants > 0 && len(contest.Participants) >= contest.MaxParticipants {
		return store.ErrCapacityReached
	}
	contest.Participants = append(contest.Participants, types.Participant{UserID: userID, RegisteredAt: at})
	s.contests[contestID] = contest
	return nil
}

func (s *ContestStore) RemoveParticipant(ctx context.Context, contestID, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contest, ok := s.contests[contestID]
	if !ok {
		return store.ErrNotFound
	}
	for i, p := range contest.Participants {
		if p.UserID == userID {
			contest.Participants = append(contest.Participants[:i:i], contest.Participants[i+1:]...)
			s.contests[contestID] = contest
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *ContestStore) ListPublic(ctx context.Context, offset, limit int) ([]types.Contest, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	public := make([]types.Contest, 0)
	for _, contest := range s.contests {
		if contest.IsPublic {
			c := cloneContest(contest)
			c.Problems, c.Participants = nil, nil
			public = append(public, c)
		}
	}
	sortByStartDesc(public)

	total := len(public)
	if offset >= total {
		return []types.Contest{}, total, nil
	}
	return public[offset:min(offset+limit, total)], total, nil
}

func (s *ContestStore) ListByParticipant(ctx context.Context, userID int) ([]types.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Contest, 0)
	for _, contest := range s.contests {
		if contest.HasParticipant(userID) {
			out = append(out, cloneContest(contest))
		}
	}
	sortByStartDesc(out)
	return out, nil
}

func sortByStartDesc(contests []types.Contest) {
	sort.Slice(contests, func(i, j int) bool {
		if !contests[i].StartTime.Equal(contests[j].StartTime) {
			return contests[i].StartTime.After(contests[j].StartTime)
		}
		return contests[i].ID > contests[j].ID
	})
}

func cloneProblem(p types.Problem) types.Problem {
	p.Testcases = append([]types.Testcase(nil), p.Testcases...)
	p.Tags = append([]string(nil), p.Tags...)
	if p.TestcaseBundle != nil {
		bundle := *p.TestcaseBundle
		bundle.Visible = append([]int(nil), bundle.Visible...)
		p.TestcaseBundle = &bundle
	}
	return p
}

func cloneSubmission(s types.Submission) types.Submission {
	s.TestcaseResults = append([]types.TestcaseResult(nil), s.TestcaseResults...)
	if s.Contest != nil {
		entry := *s.Contest
		s.Contest = &entry
	}
	return s
}

func cloneContest(c types.Contest) types.Contest {
	c.Problems = append([]types.ContestProblem(nil), c.Problems...)
	c.Participants = append([]types.Participant(nil), c.Participants...)
	return c
}
