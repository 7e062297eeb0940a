package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/scoring"
	"github.com/jjudge-oj/judgeserver/internal/stats"
	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/internal/visibility"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// historyLoadLimit bounds concurrent leaderboard loads for a contest history.
const historyLoadLimit = 4

// ContestRepository defines persistence operations for contests.
type ContestRepository interface {
	Get(ctx context.Context, id int) (types.Contest, error)
	Create(ctx context.Context, contest types.Contest) (types.Contest, error)
	AddParticipant(ctx context.Context, contestID, userID int, at time.Time) error
	RemoveParticipant(ctx context.Context, contestID, userID int) error
	ListPublic(ctx context.Context, offset, limit int) ([]types.Contest, int, error)
	ListByParticipant(ctx context.Context, userID int) ([]types.Contest, error)
}

// ContestSubmitRequest is a submission made inside a contest.
type ContestSubmitRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ContestSummary is a contest listing entry.
type ContestSummary struct {
	types.Contest
	Status types.ContestStatus `json:"status"`
}

// ContestHistoryEntry is a user's result in one contest.
type ContestHistoryEntry struct {
	ContestID int                 `json:"contest_id"`
	Title     string              `json:"title"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time"`
	Status    types.ContestStatus `json:"status"`
	Rank      int                 `json:"rank"`
	Solved    int                 `json:"solved"`
	Score     int                 `json:"score"`
	Penalty   int                 `json:"penalty"`
}

// ContestService runs contest submissions and standings.
type ContestService struct {
	contests    ContestRepository
	submissions *SubmissionService
	policy      scoring.Policy
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewContestService(contests ContestRepository, submissions *SubmissionService, policy scoring.Policy, log logrus.FieldLogger) *ContestService {
	if policy == nil {
		policy = scoring.Fixed{}
	}
	return &ContestService{
		contests:    contests,
		submissions: submissions,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

// Create validates and stores a new contest. Problems default to 100 points
// and keep their listed order when none is given.
func (s *ContestService) Create(ctx context.Context, contest types.Contest) (types.Contest, error) {
	if strings.TrimSpace(contest.Title) == "" {
		return types.Contest{}, invalid("title", "title is required")
	}
	if !contest.EndTime.After(contest.StartTime) {
		return types.Contest{}, invalid("end_time", "end time must be after start time")
	}
	if contest.MaxParticipants < 0 {
		return types.Contest{}, invalid("max_participants", "must not be negative")
	}
	if len(contest.Problems) == 0 {
		return types.Contest{}, invalid("problems", "a contest needs at least one problem")
	}

	seen := make(map[int]bool, len(contest.Problems))
	for i := range contest.Problems {
		p := &contest.Problems[i]
		if seen[p.ProblemID] {
			return types.Contest{}, invalid("problems", "problem %d listed twice", p.ProblemID)
		}
		seen[p.ProblemID] = true
		if _, err := s.submissions.problems.Get(ctx, p.ProblemID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.Contest{}, invalid("problems", "problem %d does not exist", p.ProblemID)
			}
			return types.Contest{}, err
		}
		if p.Points <= 0 {
			p.Points = types.DefaultContestProblemPoints
		}
		if p.Order <= 0 {
			p.Order = i + 1
		}
	}
	return s.contests.Create(ctx, contest)
}

// Submit judges a contest submission. The attempt number, points, penalty
// and first-solve flag are fixed when the record becomes terminal.
func (s *ContestService) Submit(ctx context.Context, userID, contestID, problemID int, req ContestSubmitRequest) (types.Submission, error) {
	contest, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return types.Submission{}, err
	}
	contestProblem, ok := contest.Problem(problemID)
	if !ok {
		return types.Submission{}, fmt.Errorf("problem %d is not part of contest %d: %w", problemID, contestID, ErrNotFound)
	}
	if !contest.HasParticipant(userID) {
		return types.Submission{}, ErrForbidden
	}
	if !contest.IsActive(s.now()) {
		return types.Submission{}, ErrContestNotActive
	}

	language, problem, err := s.submissions.prepare(ctx, problemID, req.Language, req.Code)
	if err != nil {
		return types.Submission{}, err
	}

	submission, err := newJudgingSubmission(userID, problemID, language, req.Code)
	if err != nil {
		return types.Submission{}, err
	}
	submission.Contest = &types.ContestEntry{ContestID: contestID}

	created, err := s.create(ctx, submission)
	if err != nil {
		return types.Submission{}, err
	}

	judged := s.submissions.run(ctx, created, problem)
	attempt := judged.Contest.AttemptNumber
	judged.Contest.Points = s.policy.Points(contestProblem.Points, attempt, judged.Verdict)
	judged.Contest.Penalty = types.PenaltyMinutes(attempt, judged.Verdict)

	final, written, err := s.submissions.finalize(context.WithoutCancel(ctx), judged, s.finalizeContest)
	if err != nil {
		return types.Submission{}, err
	}

	if written {
		s.submissions.publish(ctx, events.NewSubmissionResolved(final))
		s.submissions.publish(ctx, events.NewLeaderboardChanged(contestID))
	}
	return final, nil
}

// create persists a Judging contest record, retrying a lost attempt-number
// race once.
func (s *ContestService) create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	created, err := s.submissions.repo.Create(ctx, submission)
	if errors.Is(err, store.ErrConflict) {
		s.log.WithFields(logrus.Fields{
			"contest_id": submission.Contest.ContestID,
			"user_id":    submission.UserID,
			"problem_id": submission.ProblemID,
		}).Warn("attempt number conflict, retrying")
		created, err = s.submissions.repo.Create(ctx, submission)
	}
	if errors.Is(err, store.ErrConflict) {
		return types.Submission{}, ErrConcurrencyConflict
	}
	if err != nil {
		return types.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return created, nil
}

// finalizeContest claims the first solve when the verdict allows it. A
// unique-index conflict is retried once; after that the record is written
// without the claim so it still becomes terminal.
func (s *ContestService) finalizeContest(ctx context.Context, submission types.Submission) (types.Submission, error) {
	claim := submission.Verdict == types.VerdictAccepted
	final, err := s.submissions.repo.FinalizeContest(ctx, submission, claim)
	if !claim || !errors.Is(err, store.ErrConflict) {
		return final, err
	}

	log := s.log.WithFields(logrus.Fields{
		"submission_id": submission.ID,
		"contest_id":    submission.Contest.ContestID,
		"problem_id":    submission.ProblemID,
	})
	log.Warn("first solve conflict, retrying")
	final, err = s.submissions.repo.FinalizeContest(ctx, submission, true)
	if !errors.Is(err, store.ErrConflict) {
		return final, err
	}
	log.Warn("first solve conflict persisted, finalizing without claim")
	return s.submissions.repo.FinalizeContest(ctx, submission, false)
}

// Register adds userID to a public contest that has not started yet.
func (s *ContestService) Register(ctx context.Context, userID, contestID int) error {
	contest, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return err
	}
	if !contest.IsPublic {
		return ErrForbidden
	}
	now := s.now()
	if contest.Status(now) != types.ContestUpcoming {
		return ErrRegistrationClosed
	}

	err = s.contests.AddParticipant(ctx, contestID, userID, now)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrAlreadyRegistered
	case errors.Is(err, store.ErrCapacityReached):
		return ErrContestFull
	case err != nil:
		return err
	}
	s.log.WithFields(logrus.Fields{"contest_id": contestID, "user_id": userID}).Info("contest registration")
	return nil
}

// Unregister removes userID from a contest that has not started yet.
func (s *ContestService) Unregister(ctx context.Context, userID, contestID int) error {
	contest, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.Status(s.now()) != types.ContestUpcoming {
		return ErrRegistrationClosed
	}
	if err := s.contests.RemoveParticipant(ctx, contestID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %d is not registered: %w", userID, ErrNotFound)
		}
		return err
	}
	return nil
}

// Get returns contest details to registered participants, the contest
// creator and admins.
func (s *ContestService) Get(ctx context.Context, contestID int, viewer visibility.Viewer) (ContestSummary, error) {
	contest, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return ContestSummary{}, err
	}
	if !contest.HasParticipant(viewer.UserID) && contest.CreatedBy != viewer.UserID && viewer.Role != types.RoleAdmin {
		return ContestSummary{}, ErrForbidden
	}
	return s.summary(contest), nil
}

// ListPublic returns public contests, most recent first.
func (s *ContestService) ListPublic(ctx context.Context, offset, limit int) ([]ContestSummary, int, error) {
	offset, limit = clampPage(offset, limit)
	contests, total, err := s.contests.ListPublic(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ContestSummary, 0, len(contests))
	for _, c := range contests {
		out = append(out, s.summary(c))
	}
	return out, total, nil
}

// Leaderboard computes the current standings of a contest.
func (s *ContestService) Leaderboard(ctx context.Context, contestID int) ([]types.LeaderboardEntry, error) {
	var (
		contest     types.Contest
		submissions []types.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contest, err = s.contests.Get(gctx, contestID)
		return err
	})
	g.Go(func() error {
		var err error
		submissions, err = s.submissions.repo.ListAll(gctx, types.SubmissionFilter{ContestID: contestID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats.Leaderboard(contest, submissions), nil
}

// History returns the caller's standing in every contest they registered for.
func (s *ContestService) History(ctx context.Context, userID int) ([]ContestHistoryEntry, error) {
	contests, err := s.contests.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entries := make([]ContestHistoryEntry, len(contests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyLoadLimit)
	for i, contest := range contests {
		i, contest := i, contest
		g.Go(func() error {
			submissions, err := s.submissions.repo.ListAll(gctx, types.SubmissionFilter{ContestID: contest.ID})
			if err != nil {
				return fmt.Errorf("contest %d: %w", contest.ID, err)
			}
			board := stats.Leaderboard(contest, submissions)
			entry := ContestHistoryEntry{
				ContestID: contest.ID,
				Title:     contest.Title,
				StartTime: contest.StartTime,
				EndTime:   contest.EndTime,
				Status:    contest.Status(now),
				Rank:      stats.RankOf(board, userID),
			}
			for _, row := range board {
				if row.UserID == userID {
					entry.Solved, entry.Score, entry.Penalty = row.Solved, row.Score, row.Penalty
					break
				}
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListSubmissions returns the viewer's submissions within a contest.
func (s *ContestService) ListSubmissions(ctx context.Context, contestID int, viewer visibility.Viewer, offset, limit int) ([]types.Submission, int, error) {
	if _, err := s.contests.Get(ctx, contestID); err != nil {
		return nil, 0, err
	}
	return s.submissions.List(ctx, viewer, types.SubmissionFilter{ContestID: contestID}, offset, limit)
}

func (s *ContestService) summary(contest types.Contest) ContestSummary {
	return ContestSummary{
		Contest: contest,
		Status:  contest.Status(s.now()),
	}
}
