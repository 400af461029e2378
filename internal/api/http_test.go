package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestRequestTarget(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody targetRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &gotBody))
		w.Write([]byte(`{"upload_url":"https://files.example/upload","upload_params":{"key":"abc","policy":"xyz"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "tok-1", testLogger())

	target, err := c.RequestTarget(context.Background(),
		SubmissionContext{CourseID: "c1", AssignmentID: "a1"},
		FileMetadata{Name: "essay.txt", Size: 1234})
	require.NoError(t, err)

	assert.Equal(t, "/courses/c1/assignments/a1/submissions/self/files", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "essay.txt", gotBody.Name)
	assert.Equal(t, int64(1234), gotBody.Size)
	assert.Equal(t, "https://files.example/upload", target.URL)
	assert.Equal(t, map[string]string{"key": "abc", "policy": "xyz"}, target.Params)
}

func TestRequestTarget_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"upload_url":"https://files.example/upload","upload_params":{}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", testLogger())

	target, err := c.RequestTarget(context.Background(),
		SubmissionContext{CourseID: "c", AssignmentID: "a"},
		FileMetadata{Name: "f", Size: 1})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/upload", target.URL)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestTarget_ValidationErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", testLogger())

	_, err := c.RequestTarget(context.Background(),
		SubmissionContext{CourseID: "c", AssignmentID: "a"},
		FileMetadata{Name: "f", Size: 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestCreateSubmission(t *testing.T) {
	var gotPath string
	var gotBody createSubmissionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &gotBody))
		w.Write([]byte(`{"id":"submission-1"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", testLogger())

	err := c.CreateSubmission(context.Background(),
		SubmissionContext{CourseID: "c1", AssignmentID: "a1", Comment: "done"},
		[]string{"file-1", "file-2"})
	require.NoError(t, err)

	assert.Equal(t, "/courses/c1/assignments/a1/submissions", gotPath)
	assert.Equal(t, "online_upload", gotBody.SubmissionType)
	assert.Equal(t, []string{"file-1", "file-2"}, gotBody.FileIDs)
	assert.Equal(t, "done", gotBody.Comment)
}

func TestCreateSubmission_FailureNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", testLogger())

	err := c.CreateSubmission(context.Background(),
		SubmissionContext{CourseID: "c", AssignmentID: "a"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
