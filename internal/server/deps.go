package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/judgeserver/config"
	"github.com/jjudge-oj/judgeserver/internal/db"
	"github.com/jjudge-oj/judgeserver/internal/events"
	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/mq"
	"github.com/jjudge-oj/judgeserver/internal/scoring"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/internal/storage"
	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/internal/store/memstore"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// memoryBucket names the in-process bucket used by memory mode.
const memoryBucket = "judgeserver"

// Dependencies holds the services and the backend connections they use.
type Dependencies struct {
	Services Services
	closers  []func() error
}

// NewDependencies connects the configured backends and builds the services.
// Everything opened so far is closed again if a later step fails.
func NewDependencies(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (deps *Dependencies, err error) {
	deps = &Dependencies{}
	defer func() {
		if err != nil {
			_ = deps.Close()
			deps = nil
		}
	}()

	var (
		problems    services.ProblemRepository
		submissions services.SubmissionRepository
		contests    services.ContestRepository
		objects     *storage.Storage
	)
	if opts.Memory {
		mem := memstore.New(nil)
		problems, submissions, contests = mem.Problems, mem.Submissions, mem.Contests
		objects = storage.NewStorage(storage.NewMemoryStorage(memoryBucket))
		log.Warn("running with in-memory storage; data is lost on exit")
	} else {
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, conn.Close)
		problems = store.NewProblemRepository(conn)
		submissions = store.NewSubmissionRepository(conn)
		contests = store.NewContestRepository(conn)

		objects, err = OpenStorage(ctx, cfg.Storage, log)
		if err != nil {
			return nil, err
		}
	}

	judgeClient, err := deps.openJudge(cfg.Judge)
	if err != nil {
		return nil, err
	}

	publisher, err := deps.openPublisher(ctx, cfg.MQ, log)
	if err != nil {
		return nil, err
	}

	policy, err := scoring.FromConfig(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	problemService := services.NewProblemService(problems, objects, log)
	submissionService := services.NewSubmissionService(submissions, problemService, judgeClient, publisher, log, cfg.Judge.Retries)
	deps.Services = Services{
		Problems:    problemService,
		Submissions: submissionService,
		Contests:    services.NewContestService(contests, submissionService, policy, log),
	}
	log.WithFields(logrus.Fields{
		"judge":   cfg.Judge.Transport,
		"scoring": policy.Name(),
	}).Info("services ready")
	return deps, nil
}

// OpenStorage opens the configured object storage and makes sure its bucket
// exists. A disabled backend yields a nil Storage.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (*storage.Storage, error) {
	objects, err := storage.Open(ctx, cfg)
	if errors.Is(err, storage.ErrDisabled) {
		log.Info("object storage disabled; problems must carry inline testcases")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
	}
	return objects, nil
}

func (d *Dependencies) openJudge(cfg config.JudgeConfig) (judge.Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", "http":
		return judge.NewHTTPClient(cfg.URL, cfg.Timeout), nil
	case "nats":
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("judgeserver"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("connect judge nats: %w", err)
		}
		d.closers = append(d.closers, func() error {
			conn.Close()
			return nil
		})
		return judge.NewNATSClient(conn, cfg.NATSSubject, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown judge transport %q", cfg.Transport)
	}
}

func (d *Dependencies) openPublisher(ctx context.Context, cfg config.MQConfig, log logrus.FieldLogger) (events.Publisher, error) {
	queue, err := mq.Open(ctx, cfg)
	if errors.Is(err, mq.ErrDisabled) {
		return events.NopPublisher{}, nil
	}
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, queue.Close)
	log.WithField("backend", queue.Name()).Info("publishing events")
	return events.NewMQPublisher(queue, events.DefaultChannel), nil
}

// Close releases backend connections in reverse order of opening.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
