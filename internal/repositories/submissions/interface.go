package submissions

import (
	"context"

	"github.com/ndrozd/lmsubmit/internal/models"
)

// Repository describes CRUD operations for Submission records.
// Implementations are backed by the local SQLite database.
type Repository interface {
	// Insert stores a new submission record.
	Insert(ctx context.Context, s *models.Submission) error

	// GetByID returns the submission or models.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Submission, error)

	// DeleteByID removes the submission and, through the schema cascade,
	// all of its file item rows. Deleting a missing id is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// MarkSubmitFailed records the error of a failed create-submission
	// call; the record itself is retained for retry.
	MarkSubmitFailed(ctx context.Context, id string, msg string) error
}
