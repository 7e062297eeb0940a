package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jjudge-oj/judgeserver/types"
)

const contestColumnList = `id, title, description, start_time, end_time, created_by, is_public, max_participants, created_at`

// ContestRepository handles persistence for contests, their problem sets and
// their participants.
type ContestRepository struct {
	db *sql.DB
}

func NewContestRepository(db *sql.DB) *ContestRepository {
	return &ContestRepository{db: db}
}

// Get returns a contest with its problems and participants.
func (r *ContestRepository) Get(ctx context.Context, id int) (types.Contest, error) {
	query := `SELECT ` + contestColumnList + ` FROM contests WHERE id = $1`
	contest, err := scanContest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Contest{}, ErrNotFound
		}
		return types.Contest{}, err
	}

	if contest.Problems, err = r.problems(ctx, id); err != nil {
		return types.Contest{}, err
	}
	if contest.Participants, err = r.participants(ctx, id); err != nil {
		return types.Contest{}, err
	}
	return contest, nil
}

func (r *ContestRepository) Create(ctx context.Context, contest types.Contest) (types.Contest, error) {
	contest.CreatedAt = dbNow()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO contests (title, description, start_time, end_time, created_by, is_public, max_participants, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			query,
			contest.Title,
			contest.Description,
			contest.StartTime,
			contest.EndTime,
			contest.CreatedBy,
			contest.IsPublic,
			contest.MaxParticipants,
			contest.CreatedAt,
		).Scan(&contest.ID); err != nil {
			return err
		}

		const problemQuery = `
			INSERT INTO contest_problems (contest_id, problem_id, points, ordinal)
			VALUES ($1, $2, $3, $4)`
		for _, p := range contest.Problems {
			if _, err := tx.ExecContext(ctx, problemQuery, contest.ID, p.ProblemID, p.Points, p.Order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return types.Contest{}, ErrConflict
		}
		return types.Contest{}, err
	}
	return contest, nil
}

// AddParticipant registers userID. The contest row is locked so the seat
// limit holds under concurrent registrations. Registering twice is
// ErrConflict; a full contest is ErrCapacityReached.
func (r *ContestRepository) AddParticipant(ctx context.Context, contestID, userID int, at time.Time) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var maxParticipants int
		err := tx.QueryRowContext(ctx, `SELECT max_participants FROM contests WHERE id = $1 FOR UPDATE`, contestID).Scan(&maxParticipants)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if maxParticipants > 0 {
			var count int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM contest_participants WHERE contest_id = $1`, contestID).Scan(&count); err != nil {
				return err
			}
			if count >= maxParticipants {
				return ErrCapacityReached
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO contest_participants (contest_id, user_id, registered_at) VALUES ($1, $2, $3)`,
			contestID, userID, at)
		return err
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *ContestRepository) RemoveParticipant(ctx context.Context, contestID, userID int) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM contest_participants WHERE contest_id = $1 AND user_id = $2`, contestID, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPublic returns a page of public contests, latest start first. Problem
// and participant lists are not loaded.
func (r *ContestRepository) ListPublic(ctx context.Context, offset, limit int) ([]types.Contest, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM contests WHERE is_public`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + contestColumnList + ` FROM contests WHERE is_public ORDER BY start_time DESC, id DESC OFFSET $1 LIMIT $2`
	contests, err := r.query(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return contests, total, nil
}

// ListByParticipant returns the contests userID registered for, latest
// start first, with their problem sets loaded.
func (r *ContestRepository) ListByParticipant(ctx context.Context, userID int) ([]types.Contest, error) {
	const query = `
		SELECT c.id, c.title, c.description, c.start_time, c.end_time, c.created_by, c.is_public, c.max_participants, c.created_at
		FROM contests c
		JOIN contest_participants p ON p.contest_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.start_time DESC, c.id DESC`
	contests, err := r.query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	for i := range contests {
		if contests[i].Problems, err = r.problems(ctx, contests[i].ID); err != nil {
			return nil, err
		}
		if contests[i].Participants, err = r.participants(ctx, contests[i].ID); err != nil {
			return nil, err
		}
	}
	return contests, nil
}

func (r *ContestRepository) query(ctx context.Context, query string, args ...any) ([]types.Contest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contests := make([]types.Contest, 0)
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, contest)
	}
	return contests, rows.Err()
}

func (r *ContestRepository) problems(ctx context.Context, contestID int) ([]types.ContestProblem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT problem_id, points, ordinal FROM contest_problems WHERE contest_id = $1 ORDER BY ordinal, problem_id`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	problems := make([]types.ContestProblem, 0)
	for rows.Next() {
		var p types.ContestProblem
		if err := rows.Scan(&p.ProblemID, &p.Points, &p.Order); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func (r *ContestRepository) participants(ctx context.Context, contestID int) ([]types.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, registered_at FROM contest_participants WHERE contest_id = $1 ORDER BY registered_at, user_id`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]types.Participant, 0)
	for rows.Next() {
		var p types.Participant
		if err := rows.Scan(&p.UserID, &p.RegisteredAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func scanContest(row rowScanner) (types.Contest, error) {
	var contest types.Contest
	err := row.Scan(
		&contest.ID,
		&contest.Title,
		&contest.Description,
		&contest.StartTime,
		&contest.EndTime,
		&contest.CreatedBy,
		&contest.IsPublic,
		&contest.MaxParticipants,
		&contest.CreatedAt,
	)
	return contest, err
}
