package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndrozd/lmsubmit/internal/dbx"
	"github.com/ndrozd/lmsubmit/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, s *models.Submission) error {

	query := `insert into submissions (id, course_id, assignment_id, comment, submit_error, created_at)
			values (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.CourseID, s.AssignmentID, s.Comment, s.SubmitError, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {

	query := `select id, course_id, assignment_id, comment, submit_error, created_at from submissions where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	s := &models.Submission{}
	err := row.Scan(&s.ID, &s.CourseID, &s.AssignmentID, &s.Comment, &s.SubmitError, &s.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select submission: %w", err)
	}

	return s, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {

	query := `delete from submissions where id=?`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) MarkSubmitFailed(ctx context.Context, id string, msg string) error {

	query := `update submissions set submit_error=? where id=?`
	_, err := r.db.ExecContext(ctx, query, msg, id)
	if err != nil {
		return fmt.Errorf("failed to mark submission failed: %w", err)
	}

	return nil
}
