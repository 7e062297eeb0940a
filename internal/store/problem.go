package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jjudge-oj/judgeserver/types"
)

// ProblemRepository handles persistence for problems.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

func (r *ProblemRepository) Get(ctx context.Context, id int) (types.Problem, error) {
	const query = `
		SELECT id, author_id, title, description, difficulty, time_limit, memory_limit,
		       testcases, testcase_bundle, tags, created_at, updated_at
		FROM problems
		WHERE id = $1`
	var problem types.Problem
	var testcasesJSON, bundleJSON, tagsJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&problem.ID,
		&problem.AuthorID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&problem.TimeLimit,
		&problem.MemoryLimit,
		&testcasesJSON,
		&bundleJSON,
		&tagsJSON,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}

	if err := json.Unmarshal(testcasesJSON, &problem.Testcases); err != nil {
		return types.Problem{}, err
	}
	if len(bundleJSON) > 0 {
		if err := json.Unmarshal(bundleJSON, &problem.TestcaseBundle); err != nil {
			return types.Problem{}, err
		}
	}
	_ = json.Unmarshal(tagsJSON, &problem.Tags)
	return problem, nil
}

func (r *ProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := dbNow()
	problem.CreatedAt = now
	problem.UpdatedAt = now

	testcasesJSON, err := marshalList(problem.Testcases)
	if err != nil {
		return types.Problem{}, err
	}
	bundleJSON, err := marshalNullable(problem.TestcaseBundle)
	if err != nil {
		return types.Problem{}, err
	}
	tagsJSON, err := marshalList(problem.Tags)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		INSERT INTO problems (
			author_id, title, description, difficulty, time_limit, memory_limit,
			testcases, testcase_bundle, tags, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		problem.AuthorID,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		problem.TimeLimit,
		problem.MemoryLimit,
		testcasesJSON,
		bundleJSON,
		tagsJSON,
		problem.CreatedAt,
		problem.UpdatedAt,
	).Scan(&problem.ID); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}

// SetTestcaseBundle points a problem at a new testcase bundle and clears its
// inline testcases.
func (r *ProblemRepository) SetTestcaseBundle(ctx context.Context, problemID int, bundle types.TestcaseBundle) error {
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return err
	}

	const query = `
		UPDATE problems
		SET testcase_bundle = $1,
			testcases = '[]',
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, string(bundleJSON), dbNow(), problemID)
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

// marshalList encodes a slice as a JSON array, never as null.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalNullable encodes v, mapping a nil pointer to SQL NULL.
func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
