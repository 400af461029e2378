package fileitems

import (
	"context"

	"github.com/ndrozd/lmsubmit/internal/models"
)

// Repository describes CRUD and workflow operations for FileItem records.
// Implementations are backed by the local SQLite database.
//
// All state transitions run as single UPDATE statements so that transfer
// callbacks arriving on arbitrary goroutines serialize through the store
// rather than through in-process locks.
type Repository interface {
	// Insert stores a new file item row.
	Insert(ctx context.Context, item *models.FileItem) error

	// GetByID returns the item or models.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.FileItem, error)

	// GetBySubmissionID returns the submission's items ordered by position.
	GetBySubmissionID(ctx context.Context, submissionID string) ([]*models.FileItem, error)

	// GetByTaskID returns the item correlated to a live transfer task, or
	// models.ErrNotFound for stale/orphaned task ids.
	GetByTaskID(ctx context.Context, taskID string) (*models.FileItem, error)

	// DeleteByID removes one item row. Deleting a missing id is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// Claim atomically assigns taskID to the item if it has no remote id
	// and no live task, clearing any previous upload error. It reports
	// whether the claim won; a false result means another caller already
	// owns the item (or it is already uploaded).
	Claim(ctx context.Context, id string, taskID string) (bool, error)

	// UpdateProgress records transfer progress for the item owning taskID.
	// Unknown task ids are ignored.
	UpdateProgress(ctx context.Context, taskID string, sent, total int64) error

	// MarkUploaded records the backend-assigned file id and releases the
	// task correlation.
	MarkUploaded(ctx context.Context, id string, apiID string) error

	// MarkFailed records a terminal upload error and releases the task
	// correlation.
	MarkFailed(ctx context.Context, id string, msg string) error
}
