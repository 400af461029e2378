package fileitems

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

const itemColumns = `id, submission_id, name, local_path, position, bytes_uploaded, bytes_to_upload, api_id, upload_error, task_id`

func scanItem(row interface{ Scan(dest ...any) error }) (*models.FileItem, error) {
	e := &models.FileItem{}
	err := row.Scan(&e.ID, &e.SubmissionID, &e.Name, &e.LocalPath, &e.Position,
		&e.BytesUploaded, &e.BytesToUpload, &e.APIID, &e.UploadError, &e.TaskID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, item *models.FileItem) error {

	query := `insert into file_items (` + itemColumns + `)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, item.ID, item.SubmissionID, item.Name, item.LocalPath,
		item.Position, item.BytesUploaded, item.BytesToUpload, item.APIID, item.UploadError, item.TaskID)
	if err != nil {
		return fmt.Errorf("failed to insert file item: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.FileItem, error) {

	query := `select ` + itemColumns + ` from file_items where id=?`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file item: %w", err)
	}

	return item, nil
}

func (r *SQLiteRepository) GetBySubmissionID(ctx context.Context, submissionID string) ([]*models.FileItem, error) {

	query := `select ` + itemColumns + ` from file_items where submission_id=? order by position`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("error selecting file items: %w", err)
	}
	defer rows.Close()

	var result []*models.FileItem

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *SQLiteRepository) GetByTaskID(ctx context.Context, taskID string) (*models.FileItem, error) {

	if taskID == "" {
		return nil, models.ErrNotFound
	}

	query := `select ` + itemColumns + ` from file_items where task_id=?`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, taskID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file item by task: %w", err)
	}

	return item, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {

	query := `delete from file_items where id=?`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file item: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Claim(ctx context.Context, id string, taskID string) (bool, error) {

	query := `update file_items set task_id=?, upload_error='' where id=? and api_id='' and task_id=''`
	result, err := r.db.ExecContext(ctx, query, taskID, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim file item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func (r *SQLiteRepository) UpdateProgress(ctx context.Context, taskID string, sent, total int64) error {

	query := `update file_items set bytes_uploaded=?, bytes_to_upload=? where task_id=?`
	_, err := r.db.ExecContext(ctx, query, sent, total, taskID)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id string, apiID string) error {

	query := `update file_items set api_id=?, task_id='' where id=?`
	result, err := r.db.ExecContext(ctx, query, apiID, id)
	if err != nil {
		return fmt.Errorf("failed to mark file item uploaded: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected != 1 {
		return models.ErrNotFound
	}

	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, msg string) error {

	query := `update file_items set upload_error=?, task_id='' where id=?`
	result, err := r.db.ExecContext(ctx, query, msg, id)
	if err != nil {
		return fmt.Errorf("failed to mark file item failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected != 1 {
		return models.ErrNotFound
	}

	return nil
}
