package assembly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ndrozd/lmsubmit/internal/activity"
	"github.com/ndrozd/lmsubmit/internal/api"
	"github.com/ndrozd/lmsubmit/internal/composer"
	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
	"github.com/ndrozd/lmsubmit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type stubTargets struct {
	url string
}

func (s *stubTargets) RequestTarget(context.Context, api.SubmissionContext, api.FileMetadata) (*api.UploadTarget, error) {
	return &api.UploadTarget{URL: s.url, Params: map[string]string{"key": "k"}}, nil
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSubmitter) CreateSubmission(context.Context, api.SubmissionContext, []string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// manualRequester grants every activity request and lets the test revoke it
// later, the way a platform does when the extension budget runs out.
type manualRequester struct {
	mu    sync.Mutex
	block func(expired bool)
}

func (r *manualRequester) PerformExpiringActivity(_ string, block func(expired bool)) {
	r.mu.Lock()
	r.block = block
	r.mu.Unlock()
	go block(false)
}

func (r *manualRequester) expire() {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	block(true)
}

func newAssembly(t *testing.T, requester activity.Requester, targets api.UploadTargetAPI,
	submitter api.CreateSubmissionAPI) (*Assembly, *store.Store, *composer.Composer) {

	t.Helper()

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	comp := composer.New(st, t.TempDir(), log)

	asm := New(Options{
		SessionID:         "test-session",
		SharedContainerID: "test-container",
		Requester:         requester,
	}, st, comp, targets, submitter, log)

	return asm, st, comp
}

func stageSubmission(t *testing.T, comp *composer.Composer) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "essay.txt")
	require.NoError(t, os.WriteFile(src, []byte("the essay"), 0o600))
	id, err := comp.MakeNewSubmission(context.Background(), "c1", "a1", "", []string{src})
	require.NoError(t, err)
	return id
}

func TestAssembly_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"id":"remote-1"}`))
	}))
	t.Cleanup(srv.Close)

	submitter := &stubSubmitter{}
	asm, st, comp := newAssembly(t, nil, &stubTargets{url: srv.URL}, submitter)
	ctx := context.Background()

	id := stageSubmission(t, comp)
	require.NoError(t, asm.Start(ctx, id))

	require.Eventually(t, func() bool {
		_, err := st.Submissions.GetByID(ctx, id)
		return errors.Is(err, models.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, submitter.callCount())
	assert.Equal(t, 0, asm.Provider().Session().TaskCount())
}

func TestAssembly_CancelMidUpload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-release
		w.Write([]byte(`{"id":"late-1"}`))
	}))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		srv.Close()
	})

	submitter := &stubSubmitter{}
	asm, st, comp := newAssembly(t, nil, &stubTargets{url: srv.URL}, submitter)
	ctx := context.Background()

	id := stageSubmission(t, comp)
	require.NoError(t, asm.Start(ctx, id))

	items, err := st.FileItems.GetBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, items[0].TaskID)
	staged := items[0].LocalPath

	require.NoError(t, asm.Cancel(ctx, id))

	_, err = st.Submissions.GetByID(ctx, id)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err), "staged copy must be removed on cancel")

	// let the orphaned task finish; its completion finds nothing to update
	close(release)
	require.Eventually(t, func() bool {
		return asm.Provider().Session().TaskCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	var n int
	require.NoError(t, st.DB.QueryRow(`SELECT COUNT(*) FROM file_items`).Scan(&n))
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, submitter.callCount())

	// cancelling again is a no-op
	require.NoError(t, asm.Cancel(ctx, id))
}

func TestAssembly_ActivityExpiryDismissesShareUI(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-release
		w.Write([]byte(`{"id":"late-1"}`))
	}))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		srv.Close()
	})

	requester := &manualRequester{}
	asm, st, comp := newAssembly(t, requester, &stubTargets{url: srv.URL}, &stubSubmitter{})
	ctx := context.Background()

	var mu sync.Mutex
	dismissed := 0
	asm.SetupShareUIDismissBlock(func() {
		mu.Lock()
		dismissed++
		mu.Unlock()
	})

	id := stageSubmission(t, comp)
	require.NoError(t, asm.Start(ctx, id))

	items, err := st.FileItems.GetBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, items[0].TaskID)

	// the platform revokes the extension: the session is invalidated and the
	// in-flight task surfaces as disconnected, not as failed
	requester.expire()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dismissed == 1
	}, 5*time.Second, 10*time.Millisecond)

	items, err = st.FileItems.GetBySubmissionID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, items[0].UploadError)

	_, err = st.Submissions.GetByID(ctx, id)
	require.NoError(t, err, "the submission survives a disconnection")
}
