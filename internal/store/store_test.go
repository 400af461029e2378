package store

import (
	"context"
	"testing"
	"time"

	"github.com/ndrozd/lmsubmit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestOpen_RunsMigrations(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&n))
	assert.Equal(t, 0, n)
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM file_items`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpen_CascadeDeleteRows(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sub := &models.Submission{ID: "s1", CourseID: "c", AssignmentID: "a", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Submissions.Insert(ctx, sub))
	require.NoError(t, s.FileItems.Insert(ctx, &models.FileItem{ID: "f1", SubmissionID: "s1", Name: "n", LocalPath: "/tmp/f1"}))
	require.NoError(t, s.FileItems.Insert(ctx, &models.FileItem{ID: "f2", SubmissionID: "s1", Name: "n", LocalPath: "/tmp/f2"}))

	require.NoError(t, s.Submissions.DeleteByID(ctx, "s1"))

	items, err := s.FileItems.GetBySubmissionID(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items, "deleting a submission must cascade to its file item rows")
}
