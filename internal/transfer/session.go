package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Session is one background-capable transfer session. It runs each upload
// task on its own goroutine against a shared HTTP client and reports
// progress/completion to the delegate by correlation id only.
//
// Invalidating the session disconnects all in-flight tasks: they complete
// with models.ErrSessionDisconnected and the next Provider.Session() call
// yields a fresh session with the same identifiers.
type Session struct {
	id                string
	sharedContainerID string
	client            *http.Client
	delegate          Delegate
	drained           func()
	log               logging.Logger

	mu      sync.Mutex
	tasks   map[string]context.CancelFunc
	invalid bool
}

func newSession(id, sharedContainerID string, delegate Delegate, drained func(), log logging.Logger) *Session {
	return &Session{
		id:                id,
		sharedContainerID: sharedContainerID,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   0, // large files; per-task contexts handle cancellation
		},
		delegate: delegate,
		drained:  drained,
		log:      log,
		tasks:    make(map[string]context.CancelFunc),
	}
}

func (s *Session) ID() string                { return s.id }
func (s *Session) SharedContainerID() string { return s.sharedContainerID }

// TaskCount returns the number of tasks currently in flight.
func (s *Session) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Invalidated reports whether the session may still start tasks.
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

// Invalidate marks the session dead and disconnects in-flight tasks. Each
// one completes through the delegate with models.ErrSessionDisconnected.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		return
	}
	s.invalid = true
	cancels := make([]context.CancelFunc, 0, len(s.tasks))
	for _, cancel := range s.tasks {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// StartTask launches one upload task. The caller assigns the correlation id
// (persisting it first, so a completion callback can always be routed), the
// target URL and the form parameters the backend requires ahead of the file
// part.
func (s *Session) StartTask(taskID, uploadURL string, params map[string]string, localPath string) error {

	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		return models.ErrSessionInvalidated
	}
	if _, ok := s.tasks[taskID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s is already running", taskID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.tasks[taskID] = cancel
	s.mu.Unlock()

	go s.run(ctx, taskID, uploadURL, params, localPath)

	return nil
}

func (s *Session) run(ctx context.Context, taskID, uploadURL string, params map[string]string, localPath string) {

	body, err := s.upload(ctx, taskID, uploadURL, params, localPath)

	if ctx.Err() != nil {
		// Cancelled by invalidation: the transfer keeps going in the
		// platform's background session, only this process lets go.
		err = models.ErrSessionDisconnected
		body = nil
	}

	s.delegate.TaskCompleted(taskID, body, err)

	s.mu.Lock()
	delete(s.tasks, taskID)
	empty := len(s.tasks) == 0
	drained := s.drained
	s.mu.Unlock()

	if empty && drained != nil {
		drained()
	}
}

func (s *Session) upload(ctx context.Context, taskID, uploadURL string, params map[string]string, localPath string) ([]byte, error) {

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := s.writeForm(mw, params, f, taskID, fi.Size())
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", uploadURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	s.log.Debug(ctx, "upload task finished", "task_id", taskID,
		"bytes", fi.Size(), "elapsed", time.Since(start))

	return body, nil
}

// writeForm writes the target's form fields ahead of the file part, as
// presigned upload targets require.
func (s *Session) writeForm(mw *multipart.Writer, params map[string]string, f *os.File, taskID string, total int64) error {

	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filepath.Base(f.Name()))
	if err != nil {
		return err
	}

	_, err = io.Copy(part, &progressReader{
		r:     f,
		total: total,
		report: func(sent, total int64) {
			s.delegate.TaskProgress(taskID, sent, total)
		},
	})
	return err
}

// progressReader reports cumulative bytes read after every chunk.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
