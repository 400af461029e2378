package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const accessTokenHeaderName = "Authorization"

// Client talks to the LMS REST API. It implements both UploadTargetAPI and
// CreateSubmissionAPI.
type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
	log         logging.Logger
}

func NewClient(baseURL, accessToken string, log logging.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		log: log,
	}
}

type targetRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// transientError marks a failure worth retrying (5xx, transport hiccups).
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// RequestTarget asks the backend for a pre-signed upload destination for
// one file of the submission. Transient failures are retried with a short
// fibonacci backoff; validation failures are returned as-is.
func (c *Client) RequestTarget(ctx context.Context, sctx SubmissionContext, meta FileMetadata) (*UploadTarget, error) {

	url := fmt.Sprintf("%s/courses/%s/assignments/%s/submissions/self/files",
		c.baseURL, sctx.CourseID, sctx.AssignmentID)

	var target UploadTarget

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.postJSON(ctx, url, targetRequest{Name: meta.Name, Size: meta.Size}, &target); err != nil {
			var te *transientError
			if errors.As(err, &te) {
				c.log.Warn(ctx, "upload target request failed, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("request upload target: %w", err)
	}

	if target.URL == "" {
		return nil, fmt.Errorf("request upload target: backend returned no upload_url")
	}

	return &target, nil
}

type createSubmissionRequest struct {
	SubmissionType string   `json:"submission_type"`
	FileIDs        []string `json:"file_ids,omitempty"`
	Comment        string   `json:"comment,omitempty"`
}

// CreateSubmission posts the composed submission. It is not retried here:
// whether to retry a failed final call is the caller's policy, and the
// durable submission record makes a later re-attempt cheap.
func (c *Client) CreateSubmission(ctx context.Context, sctx SubmissionContext, fileIDs []string) error {

	url := fmt.Sprintf("%s/courses/%s/assignments/%s/submissions",
		c.baseURL, sctx.CourseID, sctx.AssignmentID)

	body := createSubmissionRequest{
		SubmissionType: "online_upload",
		FileIDs:        fileIDs,
		Comment:        sctx.Comment,
	}

	if err := c.postJSON(ctx, url, body, nil); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload any, out any) error {

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set(accessTokenHeaderName, "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &transientError{err: fmt.Errorf("status %d from %s", resp.StatusCode, url)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
