package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/stats"
	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/internal/visibility"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
)

// SubmissionRepository defines persistence operations for submissions.
type SubmissionRepository interface {
	Get(ctx context.Context, id int64) (types.Submission, error)
	Create(ctx context.Context, submission types.Submission) (types.Submission, error)
	Finalize(ctx context.Context, submission types.Submission) (types.Submission, error)
	FinalizeContest(ctx context.Context, submission types.Submission, claimFirstSolve bool) (types.Submission, error)
	List(ctx context.Context, filter types.SubmissionFilter, offset, limit int) ([]types.Submission, int, error)
	ListAll(ctx context.Context, filter types.SubmissionFilter) ([]types.Submission, error)
}

// ProblemSource resolves problems for judging and authorization.
type ProblemSource interface {
	Get(ctx context.Context, id int) (types.Problem, error)
	Resolve(ctx context.Context, id int) (types.Problem, error)
}

// SubmitRequest is a practice submission.
type SubmitRequest struct {
	ProblemID int    `json:"problem_id"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// SubmissionService accepts submissions, drives them through the judge and
// persists their verdicts.
type SubmissionService struct {
	repo     SubmissionRepository
	problems ProblemSource
	judge    judge.Client
	events   events.Publisher
	log      logrus.FieldLogger

	// retries is how many extra judge calls an unreachable judge gets.
	retries int
}

func NewSubmissionService(repo SubmissionRepository, problems ProblemSource, judgeClient judge.Client, publisher events.Publisher, log logrus.FieldLogger, retries int) *SubmissionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if retries < 0 {
		retries = 0
	}
	return &SubmissionService{
		repo:     repo,
		problems: problems,
		judge:    judgeClient,
		events:   publisher,
		log:      log,
		retries:  retries,
	}
}

// Submit judges code against a problem and returns the terminal record. Judge
// failures are recorded as RuntimeError and are not returned as errors.
func (s *SubmissionService) Submit(ctx context.Context, userID int, req SubmitRequest) (types.Submission, error) {
	language, problem, err := s.prepare(ctx, req.ProblemID, req.Language, req.Code)
	if err != nil {
		return types.Submission{}, err
	}

	submission, err := newJudgingSubmission(userID, problem.ID, language, req.Code)
	if err != nil {
		return types.Submission{}, err
	}
	created, err := s.repo.Create(ctx, submission)
	if err != nil {
		return types.Submission{}, fmt.Errorf("create submission: %w", err)
	}

	judged := s.run(ctx, created, problem)
	final, written, err := s.finalize(context.WithoutCancel(ctx), judged, s.repo.Finalize)
	if err != nil {
		return types.Submission{}, err
	}

	if written {
		s.publish(ctx, events.NewSubmissionResolved(final))
	}
	return final, nil
}

// Get returns a submission to its owner, an admin or the problem's author.
// Results of hidden testcases are filtered for everyone else.
func (s *SubmissionService) Get(ctx context.Context, id int64, viewer visibility.Viewer) (types.Submission, error) {
	submission, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Submission{}, err
	}
	problem, err := s.problems.Get(ctx, submission.ProblemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.Submission{}, err
	}
	if submission.UserID != viewer.UserID && !visibility.CanSeeHidden(viewer, problem.AuthorID) {
		return types.Submission{}, ErrForbidden
	}
	return visibility.Submission(submission, viewer, problem.AuthorID), nil
}

// ForViewer filters a submission's per-test results for viewer.
func (s *SubmissionService) ForViewer(ctx context.Context, submission types.Submission, viewer visibility.Viewer) (types.Submission, error) {
	filtered, err := s.filterResults(ctx, []types.Submission{submission}, viewer)
	if err != nil {
		return types.Submission{}, err
	}
	return filtered[0], nil
}

// List returns the viewer's own submissions, newest first. Without a
// contest in filter only practice submissions are listed.
func (s *SubmissionService) List(ctx context.Context, viewer visibility.Viewer, filter types.SubmissionFilter, offset, limit int) ([]types.Submission, int, error) {
	offset, limit = clampPage(offset, limit)
	filter.UserID = viewer.UserID
	filter.PracticeOnly = filter.ContestID == 0
	submissions, total, err := s.repo.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	filtered, err := s.filterResults(ctx, submissions, viewer)
	if err != nil {
		return nil, 0, err
	}
	return filtered, total, nil
}

// Stats summarises a user's judged practice submissions.
func (s *SubmissionService) Stats(ctx context.Context, userID int) (types.UserStats, error) {
	submissions, err := s.repo.ListAll(ctx, types.SubmissionFilter{UserID: userID, PracticeOnly: true})
	if err != nil {
		return types.UserStats{}, fmt.Errorf("load submissions: %w", err)
	}
	return stats.UserStats(submissions), nil
}

// prepare validates a submission and resolves the problem with its
// testcases. Nothing is persisted.
func (s *SubmissionService) prepare(ctx context.Context, problemID int, rawLanguage, code string) (types.Language, types.Problem, error) {
	if strings.TrimSpace(code) == "" {
		return 0, types.Problem{}, invalid("code", "code is required")
	}
	if problemID <= 0 {
		return 0, types.Problem{}, invalid("problem_id", "problem id must be positive")
	}
	language, err := types.ParseLanguage(rawLanguage)
	if err != nil {
		return 0, types.Problem{}, invalid("language", "%v", err)
	}

	problem, err := s.problems.Resolve(ctx, problemID)
	if err != nil {
		return 0, types.Problem{}, err
	}
	if len(problem.Testcases) == 0 {
		return 0, types.Problem{}, invalid("problem_id", "problem %d has no testcases", problemID)
	}
	return language, problem, nil
}

func newJudgingSubmission(userID, problemID int, language types.Language, code string) (types.Submission, error) {
	submission := types.Submission{
		ProblemID: problemID,
		UserID:    userID,
		Language:  language,
		Code:      code,
		Verdict:   types.VerdictPending,
	}
	verdict, err := submission.Verdict.Transition(types.VerdictJudging)
	if err != nil {
		return types.Submission{}, err
	}
	submission.Verdict = verdict
	return submission, nil
}

// run calls the judge and applies the outcome to submission in memory. The
// returned submission is always terminal.
func (s *SubmissionService) run(ctx context.Context, submission types.Submission, problem types.Problem) types.Submission {
	timeLimit, memoryLimit := problem.Limits()
	req := judge.NewRequest(submission.Language, submission.Code, problem.Testcases, timeLimit, memoryLimit)
	log := s.log.WithFields(logrus.Fields{
		"submission_id": submission.ID,
		"user_id":       submission.UserID,
		"problem_id":    submission.ProblemID,
	})

	// A caller disconnecting must not turn into a judge failure; the judge
	// client bounds the call with its own timeout.
	judgeCtx := context.WithoutCancel(ctx)

	var (
		result judge.Result
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = s.judge.Judge(judgeCtx, req)
		if err == nil || !errors.Is(err, judge.ErrUnreachable) || attempt >= s.retries {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("judge unreachable, retrying")
	}

	if err != nil {
		log.WithError(err).Warn("judging failed")
		return applyFailure(submission, problem, err)
	}
	return applyResult(submission, problem, result)
}

func applyResult(submission types.Submission, problem types.Problem, result judge.Result) types.Submission {
	submission.Verdict = terminal(submission.Verdict, result.Verdict)
	submission.TestsPassed = result.PassedTests
	submission.TestsTotal = result.TotalTests
	submission.ExecutionTime = result.ExecutionTime
	submission.MemoryUsed = result.MemoryUsed
	submission.ErrorMessage = result.Error
	submission.CompilerOutput = result.Details

	submission.TestcaseResults = make([]types.TestcaseResult, 0, len(result.TestResults))
	for i, tr := range result.TestResults {
		index := tr.TestCase
		if index < 1 || index > len(problem.Testcases) {
			index = i + 1
		}
		r := types.TestcaseResult{
			Index:          index,
			Verdict:        types.FromJudge(tr.Verdict),
			Input:          tr.Input,
			ExpectedOutput: tr.ExpectedOutput,
			ActualOutput:   tr.ActualOutput,
			ExecutionTime:  int64(math.Round(tr.ExecutionTime)),
			Error:          tr.Error,
		}
		if index <= len(problem.Testcases) {
			tc := problem.Testcases[index-1]
			r.Visible = tc.Visible
			if r.Input == "" {
				r.Input = tc.Input
			}
			if r.ExpectedOutput == "" {
				r.ExpectedOutput = tc.Output
			}
		}
		submission.TestcaseResults = append(submission.TestcaseResults, r)
	}
	return submission
}

func applyFailure(submission types.Submission, problem types.Problem, err error) types.Submission {
	submission.Verdict = terminal(submission.Verdict, types.VerdictRuntimeError)
	submission.ErrorMessage = err.Error()
	submission.TestsPassed = 0
	submission.TestsTotal = len(problem.Testcases)
	submission.TestcaseResults = nil
	return submission
}

// terminal moves a Judging verdict to next, falling back to RuntimeError if
// next is not a legal target.
func terminal(current, next types.Verdict) types.Verdict {
	if v, err := current.Transition(next); err == nil {
		return v
	}
	if v, err := current.Transition(types.VerdictRuntimeError); err == nil {
		return v
	}
	return current
}

type finalizeFunc func(ctx context.Context, submission types.Submission) (types.Submission, error)

// finalize performs the terminal write. A record that is already terminal is
// left untouched and returned as stored with written set to false.
func (s *SubmissionService) finalize(ctx context.Context, submission types.Submission, write finalizeFunc) (final types.Submission, written bool, err error) {
	final, err = write(ctx, submission)
	if err == nil {
		s.log.WithFields(logrus.Fields{
			"submission_id": final.ID,
			"user_id":       final.UserID,
			"problem_id":    final.ProblemID,
			"verdict":       final.Verdict.String(),
		}).Info("submission judged")
		return final, true, nil
	}
	if !errors.Is(err, store.ErrAlreadyFinal) {
		return types.Submission{}, false, fmt.Errorf("finalize submission %d: %w", submission.ID, err)
	}

	s.log.WithField("submission_id", submission.ID).Warn("duplicate terminal write rejected")
	stored, getErr := s.repo.Get(ctx, submission.ID)
	if getErr != nil {
		return types.Submission{}, false, fmt.Errorf("finalize submission %d: %w", submission.ID, getErr)
	}
	return stored, false, nil
}

func (s *SubmissionService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.WithError(err).WithField("event_type", string(event.Type)).Warn("failed to publish event")
	}
}

// filterResults applies result visibility to a page of submissions. Problem
// authors are looked up once per problem.
func (s *SubmissionService) filterResults(ctx context.Context, submissions []types.Submission, viewer visibility.Viewer) ([]types.Submission, error) {
	authors := make(map[int]int)
	out := make([]types.Submission, 0, len(submissions))
	for _, sub := range submissions {
		authorID, ok := authors[sub.ProblemID]
		if !ok {
			problem, err := s.problems.Get(ctx, sub.ProblemID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			authorID = problem.AuthorID
			authors[sub.ProblemID] = authorID
		}
		out = append(out, visibility.Submission(sub, viewer, authorID))
	}
	return out, nil
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return offset, limit
}
