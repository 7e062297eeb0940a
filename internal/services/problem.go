package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jjudge-oj/judgeserver/internal/storage"
	"github.com/jjudge-oj/judgeserver/internal/visibility"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
)

// ErrStorageDisabled is returned when a problem references a testcase bundle
// but no object storage is configured.
var ErrStorageDisabled = errors.New("problem testcases live in object storage, which is not configured")

// ProblemRepository defines persistence operations for problems.
type ProblemRepository interface {
	Get(ctx context.Context, id int) (types.Problem, error)
	Create(ctx context.Context, problem types.Problem) (types.Problem, error)
	SetTestcaseBundle(ctx context.Context, problemID int, bundle types.TestcaseBundle) error
}

// ProblemService resolves problems and their testcases.
type ProblemService struct {
	repo    ProblemRepository
	storage *storage.Storage
	log     logrus.FieldLogger

	mu      sync.Mutex
	bundles map[string][]types.Testcase
}

// NewProblemService returns a problem service. objects may be nil when no
// object storage is configured; problems must then carry inline testcases.
func NewProblemService(repo ProblemRepository, objects *storage.Storage, log logrus.FieldLogger) *ProblemService {
	return &ProblemService{
		repo:    repo,
		storage: objects,
		log:     log,
		bundles: make(map[string][]types.Testcase),
	}
}

// Get returns problem metadata without loading bundled testcases.
func (s *ProblemService) Get(ctx context.Context, id int) (types.Problem, error) {
	return s.repo.Get(ctx, id)
}

// View returns a problem with its testcases filtered for viewer.
func (s *ProblemService) View(ctx context.Context, id int, viewer visibility.Viewer) (types.Problem, error) {
	problem, err := s.Resolve(ctx, id)
	if err != nil {
		return types.Problem{}, err
	}
	return visibility.Problem(problem, viewer), nil
}

// Resolve returns a problem with its full testcase list, reading the
// testcase bundle from object storage when the problem has one.
func (s *ProblemService) Resolve(ctx context.Context, id int) (types.Problem, error) {
	problem, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Problem{}, err
	}
	if problem.TestcaseBundle == nil || len(problem.Testcases) > 0 {
		return problem, nil
	}

	testcases, err := s.bundleTestcases(ctx, *problem.TestcaseBundle)
	if err != nil {
		return types.Problem{}, fmt.Errorf("load testcases for problem %d: %w", id, err)
	}
	problem.Testcases = testcases
	return problem, nil
}

// Import creates a problem whose testcases come from a tar.gz bundle. The
// bundle is uploaded to object storage and referenced by the problem.
func (s *ProblemService) Import(ctx context.Context, problem types.Problem, bundleName string, data []byte, visible []int) (types.Problem, error) {
	if strings.TrimSpace(problem.Title) == "" {
		return types.Problem{}, invalid("title", "title is required")
	}
	if problem.TimeLimit < 0 || problem.MemoryLimit < 0 {
		return types.Problem{}, invalid("limits", "limits must not be negative")
	}
	if s.storage == nil {
		return types.Problem{}, ErrStorageDisabled
	}

	bundle, testcases, err := ParseTestcaseBundle(bundleName, data, visible)
	if err != nil {
		return types.Problem{}, err
	}

	problem.Testcases = nil
	problem.TestcaseBundle = nil
	created, err := s.repo.Create(ctx, problem)
	if err != nil {
		return types.Problem{}, err
	}

	bundle.ObjectKey = storage.BundleKey(created.ID, bundle.SHA256)
	if _, err := s.storage.PutBundle(ctx, bundle.ObjectKey, data, bundle.SHA256); err != nil {
		return types.Problem{}, fmt.Errorf("upload testcase bundle: %w", err)
	}
	if err := s.repo.SetTestcaseBundle(ctx, created.ID, bundle); err != nil {
		// Nothing references the object yet.
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), bundle.ObjectKey); delErr != nil {
			s.log.WithError(delErr).WithField("object_key", bundle.ObjectKey).Warn("failed to remove orphaned testcase bundle")
		}
		return types.Problem{}, err
	}
	s.cache(bundle.ObjectKey, testcases)

	s.log.WithFields(logrus.Fields{
		"problem_id": created.ID,
		"object_key": bundle.ObjectKey,
		"testcases":  bundle.Count,
	}).Info("problem imported")

	created.TestcaseBundle = &bundle
	created.Testcases = testcases
	return created, nil
}

// ReplaceTestcaseBundle swaps a problem's testcases for a new bundle. An
// identical bundle is a no-op.
func (s *ProblemService) ReplaceTestcaseBundle(ctx context.Context, problemID int, bundleName string, data []byte, visible []int) error {
	if s.storage == nil {
		return ErrStorageDisabled
	}
	current, err := s.repo.Get(ctx, problemID)
	if err != nil {
		return err
	}

	bundle, testcases, err := ParseTestcaseBundle(bundleName, data, visible)
	if err != nil {
		return err
	}
	if current.TestcaseBundle != nil && current.TestcaseBundle.SHA256 == bundle.SHA256 &&
		slices.Equal(current.TestcaseBundle.Visible, bundle.Visible) {
		return nil
	}

	bundle.ObjectKey = storage.BundleKey(problemID, bundle.SHA256)
	uploaded, err := s.storage.PutBundle(ctx, bundle.ObjectKey, data, bundle.SHA256)
	if err != nil {
		return fmt.Errorf("upload testcase bundle: %w", err)
	}
	if err := s.repo.SetTestcaseBundle(ctx, problemID, bundle); err != nil {
		return err
	}
	s.cache(bundle.ObjectKey, testcases)

	s.log.WithFields(logrus.Fields{
		"problem_id": problemID,
		"object_key": bundle.ObjectKey,
		"uploaded":   uploaded,
	}).Info("testcase bundle replaced")
	return nil
}

func (s *ProblemService) bundleTestcases(ctx context.Context, bundle types.TestcaseBundle) ([]types.Testcase, error) {
	s.mu.Lock()
	cached, ok := s.bundles[bundle.ObjectKey]
	s.mu.Unlock()
	if ok {
		return applyVisible(cached, bundle.Visible), nil
	}

	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	data, err := s.storage.ReadAll(ctx, bundle.ObjectKey)
	if err != nil {
		return nil, err
	}
	testcases, err := LoadTestcaseBundle(bundle, data)
	if err != nil {
		return nil, err
	}
	s.cache(bundle.ObjectKey, testcases)
	return applyVisible(testcases, bundle.Visible), nil
}

// cache keeps parsed bundles by object key. Keys embed the content hash, so
// an entry never goes stale.
func (s *ProblemService) cache(key string, testcases []types.Testcase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[key] = testcases
}

func applyVisible(testcases []types.Testcase, visible []int) []types.Testcase {
	out := make([]types.Testcase, len(testcases))
	copy(out, testcases)
	for i := range out {
		out[i].Visible = false
	}
	for _, order := range visible {
		if order >= 1 && order <= len(out) {
			out[order-1].Visible = true
		}
	}
	return out
}
