// Package composer implements the use-case layer over the submission store:
// starting a new submission from local files, removing one file from a
// pending submission, and cancelling a submission entirely.
package composer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ndrozd/lmsubmit/internal/dbx"
	"github.com/ndrozd/lmsubmit/internal/filex"
	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
	"github.com/ndrozd/lmsubmit/internal/repositories/fileitems"
	"github.com/ndrozd/lmsubmit/internal/repositories/submissions"
	"github.com/ndrozd/lmsubmit/internal/store"
)

type Composer struct {
	store      *store.Store
	stagingDir string
	log        logging.Logger
}

func New(st *store.Store, stagingDir string, log logging.Logger) *Composer {
	return &Composer{store: st, stagingDir: stagingDir, log: log}
}

// MakeNewSubmission stages each source file into the submission's own
// directory and persists one Submission plus one FileItem per file, in
// order, inside a single transaction. Either everything is written or
// nothing is; on failure any staged copies are removed again.
//
// An empty sourcePaths list is valid and produces a comment-only submission.
func (c *Composer) MakeNewSubmission(ctx context.Context, courseID, assignmentID, comment string, sourcePaths []string) (string, error) {

	submissionID := uuid.NewString()

	dir := filepath.Join(c.stagingDir, submissionID)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("error creating staging dir: %w", err)
	}

	items := make([]*models.FileItem, 0, len(sourcePaths))
	for n, src := range sourcePaths {
		itemID := uuid.NewString()

		staged, err := filex.Stage(src, dir, itemID+filepath.Ext(src))
		if err != nil {
			c.removeStaged(ctx, items, dir)
			return "", fmt.Errorf("error staging file: %w", err)
		}

		size, err := filex.Size(staged)
		if err != nil {
			c.removeStaged(ctx, items, dir)
			return "", fmt.Errorf("error staging file: %w", err)
		}

		items = append(items, &models.FileItem{
			ID:            itemID,
			SubmissionID:  submissionID,
			Name:          filepath.Base(src),
			LocalPath:     staged,
			Position:      n,
			BytesToUpload: size,
		})
	}

	sub := &models.Submission{
		ID:           submissionID,
		CourseID:     courseID,
		AssignmentID: assignmentID,
		Comment:      comment,
		CreatedAt:    time.Now().UTC(),
	}

	err := dbx.WithTx(ctx, c.store.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := submissions.NewSQLiteRepository(tx).Insert(ctx, sub); err != nil {
			return err
		}
		itemRepo := fileitems.NewSQLiteRepository(tx)
		for _, item := range items {
			if err := itemRepo.Insert(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		c.removeStaged(ctx, items, dir)
		return "", fmt.Errorf("error creating submission: %w", err)
	}

	c.log.Info(ctx, "submission created", "submission_id", submissionID, "files", len(items))

	return submissionID, nil
}

// DeleteItem removes one file item and its staged file. Deleting an unknown
// id is a no-op.
func (c *Composer) DeleteItem(ctx context.Context, itemID string) error {

	item, err := c.store.FileItems.GetByID(ctx, itemID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error retrieving file item: %w", err)
	}

	if err := filex.RemoveIfExists(item.LocalPath); err != nil {
		c.log.Error(ctx, "failed to remove staged file", "path", item.LocalPath, "error", err)
	}

	if err := c.store.FileItems.DeleteByID(ctx, itemID); err != nil {
		return fmt.Errorf("error deleting file item: %w", err)
	}

	return nil
}

// DeleteSubmission removes the submission, all of its file items and their
// staged files. Deleting an unknown id is a no-op. In-flight transfer tasks
// are not touched: their completion callbacks will no longer find a matching
// item and get ignored.
func (c *Composer) DeleteSubmission(ctx context.Context, submissionID string) error {

	items, err := c.store.FileItems.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("error retrieving file items: %w", err)
	}

	for _, item := range items {
		if err := filex.RemoveIfExists(item.LocalPath); err != nil {
			c.log.Error(ctx, "failed to remove staged file", "path", item.LocalPath, "error", err)
		}
	}

	if err := c.store.Submissions.DeleteByID(ctx, submissionID); err != nil {
		return fmt.Errorf("error deleting submission: %w", err)
	}

	// staging dir is empty now, drop it as well
	_ = os.Remove(filepath.Join(c.stagingDir, submissionID))

	c.log.Info(ctx, "submission deleted", "submission_id", submissionID)

	return nil
}

func (c *Composer) removeStaged(ctx context.Context, items []*models.FileItem, dir string) {
	for _, item := range items {
		if err := filex.RemoveIfExists(item.LocalPath); err != nil {
			c.log.Error(ctx, "failed to remove staged file", "path", item.LocalPath, "error", err)
		}
	}
	_ = os.Remove(dir)
}
