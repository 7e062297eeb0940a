package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/judgeserver/types"
)

const submissionColumns = `
	id, problem_id, user_id, language, code, verdict,
	execution_time, memory_used, tests_passed, tests_total,
	error_message, compiler_output, testcase_results,
	contest_id, attempt_number, is_first_solve, points, penalty,
	submitted_at, updated_at`

// SubmissionRepository handles persistence for practice and contest
// submissions. Contest submissions carry a non-nil Contest entry.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Get(ctx context.Context, id int64) (types.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

// Create inserts a submission. For contest submissions the attempt number
// is allocated from the per (contest, user, problem) counter inside the
// same transaction, so concurrent submissions receive 1..n without gaps.
// A unique violation is reported as ErrConflict.
func (r *SubmissionRepository) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	now := dbNow()
	submission.SubmittedAt = now
	submission.UpdatedAt = now

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if submission.Contest != nil {
			const counterQuery = `
				INSERT INTO contest_attempt_counters (contest_id, user_id, problem_id, last_attempt)
				VALUES ($1, $2, $3, 1)
				ON CONFLICT (contest_id, user_id, problem_id)
				DO UPDATE SET last_attempt = contest_attempt_counters.last_attempt + 1
				RETURNING last_attempt`
			if err := tx.QueryRowContext(
				ctx,
				counterQuery,
				submission.Contest.ContestID,
				submission.UserID,
				submission.ProblemID,
			).Scan(&submission.Contest.AttemptNumber); err != nil {
				return err
			}
		}
		return insertSubmission(ctx, tx, &submission)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return types.Submission{}, ErrConflict
		}
		return types.Submission{}, err
	}
	return submission, nil
}

func insertSubmission(ctx context.Context, tx *sql.Tx, submission *types.Submission) error {
	resultsJSON, err := marshalList(submission.TestcaseResults)
	if err != nil {
		return err
	}
	contestID, attempt, firstSolve, points, penalty := contestColumns(submission.Contest)

	const query = `
		INSERT INTO submissions (
			problem_id, user_id, language, code, verdict,
			execution_time, memory_used, tests_passed, tests_total,
			error_message, compiler_output, testcase_results,
			contest_id, attempt_number, is_first_solve, points, penalty,
			submitted_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`
	return tx.QueryRowContext(
		ctx,
		query,
		submission.ProblemID,
		submission.UserID,
		submission.Language,
		submission.Code,
		int(submission.Verdict),
		submission.ExecutionTime,
		submission.MemoryUsed,
		submission.TestsPassed,
		submission.TestsTotal,
		submission.ErrorMessage,
		submission.CompilerOutput,
		resultsJSON,
		contestID,
		attempt,
		firstSolve,
		points,
		penalty,
		submission.SubmittedAt,
		submission.UpdatedAt,
	).Scan(&submission.ID)
}

// Finalize writes the terminal verdict and results of a submission. The
// write only applies while the stored verdict is still pending or judging;
// otherwise ErrAlreadyFinal is returned and nothing changes.
func (r *SubmissionRepository) Finalize(ctx context.Context, submission types.Submission) (types.Submission, error) {
	if !submission.Verdict.IsTerminal() {
		return types.Submission{}, fmt.Errorf("finalize with %w", types.ErrIllegalTransition)
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		return finalizeSubmission(ctx, tx, &submission)
	})
	if err != nil {
		return types.Submission{}, err
	}
	return submission, nil
}

// FinalizeContest writes the terminal state of a contest submission while
// holding the (contest, problem) advisory lock. When claimFirstSolve is set
// and the verdict is Accepted, the submission becomes the first solve unless
// another submission already holds it or was accepted earlier. A lost race
// on the first-solve index is reported as ErrConflict.
func (r *SubmissionRepository) FinalizeContest(ctx context.Context, submission types.Submission, claimFirstSolve bool) (types.Submission, error) {
	if submission.Contest == nil {
		return types.Submission{}, errors.New("finalize contest: submission has no contest entry")
	}
	if !submission.Verdict.IsTerminal() {
		return types.Submission{}, fmt.Errorf("finalize with %w", types.ErrIllegalTransition)
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		contestID := submission.Contest.ContestID
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, contestID, submission.ProblemID); err != nil {
			return err
		}

		submission.Contest.IsFirstSolve = false
		if claimFirstSolve && submission.Verdict == types.VerdictAccepted {
			const query = `
				SELECT EXISTS (
					SELECT 1 FROM submissions
					WHERE contest_id = $1
					  AND problem_id = $2
					  AND id <> $3
					  AND (is_first_solve OR (verdict = $4 AND submitted_at < $5))
				)`
			var taken bool
			if err := tx.QueryRowContext(
				ctx,
				query,
				contestID,
				submission.ProblemID,
				submission.ID,
				int(types.VerdictAccepted),
				submission.SubmittedAt,
			).Scan(&taken); err != nil {
				return err
			}
			submission.Contest.IsFirstSolve = !taken
		}
		return finalizeSubmission(ctx, tx, &submission)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return types.Submission{}, ErrConflict
		}
		return types.Submission{}, err
	}
	return submission, nil
}

func finalizeSubmission(ctx context.Context, tx *sql.Tx, submission *types.Submission) error {
	submission.UpdatedAt = dbNow()

	resultsJSON, err := marshalList(submission.TestcaseResults)
	if err != nil {
		return err
	}
	_, _, firstSolve, points, penalty := contestColumns(submission.Contest)

	const query = `
		UPDATE submissions
		SET verdict = $1,
			execution_time = $2,
			memory_used = $3,
			tests_passed = $4,
			tests_total = $5,
			error_message = $6,
			compiler_output = $7,
			testcase_results = $8,
			is_first_solve = $9,
			points = $10,
			penalty = $11,
			updated_at = $12
		WHERE id = $13 AND verdict IN ($14, $15)`
	result, err := tx.ExecContext(
		ctx,
		query,
		int(submission.Verdict),
		submission.ExecutionTime,
		submission.MemoryUsed,
		submission.TestsPassed,
		submission.TestsTotal,
		submission.ErrorMessage,
		submission.CompilerOutput,
		resultsJSON,
		firstSolve,
		points,
		penalty,
		submission.UpdatedAt,
		submission.ID,
		int(types.VerdictPending),
		int(types.VerdictJudging),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)`, submission.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrAlreadyFinal
	}
	return ErrNotFound
}

// List returns a page of submissions matching filter, newest first, and the
// total number of matches.
func (r *SubmissionRepository) List(ctx context.Context, filter types.SubmissionFilter, offset, limit int) ([]types.Submission, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := submissionWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM submissions%s ORDER BY submitted_at DESC, id DESC OFFSET $%d LIMIT $%d`,
		submissionColumns, where, len(args)+1, len(args)+2)
	submissions, err := r.query(ctx, query, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	return submissions, total, nil
}

// ListAll returns every submission matching filter in arrival order.
func (r *SubmissionRepository) ListAll(ctx context.Context, filter types.SubmissionFilter) ([]types.Submission, error) {
	where, args := submissionWhere(filter)
	query := `SELECT ` + submissionColumns + ` FROM submissions` + where + ` ORDER BY submitted_at, id`
	return r.query(ctx, query, args...)
}

func (r *SubmissionRepository) query(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]types.Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func submissionWhere(filter types.SubmissionFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID > 0 {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ProblemID > 0 {
		add("problem_id = $%d", filter.ProblemID)
	}
	if filter.ContestID > 0 {
		add("contest_id = $%d", filter.ContestID)
	}
	if filter.PracticeOnly {
		clauses = append(clauses, "contest_id IS NULL")
	}
	if filter.Verdict != nil {
		add("verdict = $%d", int(*filter.Verdict))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSubmission(row rowScanner) (types.Submission, error) {
	var (
		submission  types.Submission
		verdict     int
		resultsJSON []byte
		contestID   sql.NullInt64
		attempt     sql.NullInt64
		firstSolve  bool
		points      int
		penalty     int
	)
	if err := row.Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Language,
		&submission.Code,
		&verdict,
		&submission.ExecutionTime,
		&submission.MemoryUsed,
		&submission.TestsPassed,
		&submission.TestsTotal,
		&submission.ErrorMessage,
		&submission.CompilerOutput,
		&resultsJSON,
		&contestID,
		&attempt,
		&firstSolve,
		&points,
		&penalty,
		&submission.SubmittedAt,
		&submission.UpdatedAt,
	); err != nil {
		return types.Submission{}, err
	}

	submission.Verdict = types.Verdict(verdict)
	if err := json.Unmarshal(resultsJSON, &submission.TestcaseResults); err != nil {
		return types.Submission{}, err
	}
	if contestID.Valid {
		submission.Contest = &types.ContestEntry{
			ContestID:     int(contestID.Int64),
			AttemptNumber: int(attempt.Int64),
			IsFirstSolve:  firstSolve,
			Points:        points,
			Penalty:       penalty,
		}
	}
	return submission, nil
}

func contestColumns(entry *types.ContestEntry) (contestID, attempt sql.NullInt64, firstSolve bool, points, penalty int) {
	if entry == nil {
		return
	}
	contestID = sql.NullInt64{Int64: int64(entry.ContestID), Valid: true}
	attempt = sql.NullInt64{Int64: int64(entry.AttemptNumber), Valid: true}
	return contestID, attempt, entry.IsFirstSolve, entry.Points, entry.Penalty
}
