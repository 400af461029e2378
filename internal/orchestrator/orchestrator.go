// Package orchestrator drives a persisted submission through upload: one
// upload target and one transfer task per file, progress and completion
// correlated back to file items by task id, and the final create-submission
// call once every file has a remote id.
//
// All observable state lives in the store. Transfer callbacks arrive on
// arbitrary goroutines with no domain context; they are routed through the
// durable task correlation id, so they survive session recreation and are
// silently ignored when their item has been deleted in the meantime.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ndrozd/lmsubmit/internal/api"
	"github.com/ndrozd/lmsubmit/internal/composer"
	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
	"github.com/ndrozd/lmsubmit/internal/store"
	"github.com/ndrozd/lmsubmit/internal/transfer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Guard is the slice of the background-activity guard the orchestrator
// uses: best-effort extension around the upload window.
type Guard interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Orchestrator struct {
	store     *store.Store
	composer  *composer.Composer
	targets   api.UploadTargetAPI
	submitter api.CreateSubmissionAPI
	guard     Guard
	log       logging.Logger
	tracer    trace.Tracer

	// provider is set by the assembly after construction, since the
	// provider's delegate is the orchestrator itself.
	provider *transfer.Provider

	mu      sync.Mutex
	dismiss func()
}

func New(st *store.Store, comp *composer.Composer, targets api.UploadTargetAPI,
	submitter api.CreateSubmissionAPI, guard Guard, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		composer:  comp,
		targets:   targets,
		submitter: submitter,
		guard:     guard,
		log:       log,
		tracer:    otel.Tracer("lmsubmit/orchestrator"),
	}
}

func (o *Orchestrator) SetProvider(p *transfer.Provider) {
	o.provider = p
}

// SetShareUIDismissBlock registers a one-shot callback invoked the first
// time an upload transitions into "continues in background, safe to
// dismiss" (a disconnection-class completion).
func (o *Orchestrator) SetShareUIDismissBlock(fn func()) {
	o.mu.Lock()
	o.dismiss = fn
	o.mu.Unlock()
}

// Start begins (or resumes) orchestration for a persisted submission. It is
// idempotent: items that are already uploaded or already own a live task
// are skipped, so calling Start twice never creates duplicate tasks. Items
// whose previous attempt failed are re-claimed, which is also the retry
// path after a failed final call.
func (o *Orchestrator) Start(ctx context.Context, submissionID string) error {

	ctx, span := o.tracer.Start(ctx, "submission.Start",
		trace.WithAttributes(attribute.String("submission.id", submissionID)))
	defer span.End()

	sub, err := o.store.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("error retrieving submission: %w", err)
	}

	items, err := o.store.FileItems.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("error retrieving file items: %w", err)
	}

	if allUploaded(items) {
		// Nothing left to transfer (or a comment-only submission):
		// go straight to the final call.
		return o.submit(ctx, sub, items)
	}

	// Best effort: most of the transfer is carried by the background
	// session anyway, the extension only bridges foreground teardown.
	if err := o.guard.Start(ctx); err != nil {
		o.log.Warn(ctx, "proceeding without background activity", "error", err)
	}

	sctx := api.SubmissionContext{
		CourseID:     sub.CourseID,
		AssignmentID: sub.AssignmentID,
		Comment:      sub.Comment,
	}

	var g errgroup.Group
	for _, item := range items {
		if item.Uploaded() {
			continue
		}
		g.Go(func() error {
			o.startItem(ctx, sctx, item)
			return nil
		})
	}

	// Item failures land on the items themselves, never here.
	_ = g.Wait()

	return nil
}

// startItem claims the item, requests its upload target and hands the file
// to the transfer session. Losing the claim means another Start (or a live
// task) already owns the item.
func (o *Orchestrator) startItem(ctx context.Context, sctx api.SubmissionContext, item *models.FileItem) {

	ctx, span := o.tracer.Start(ctx, "submission.UploadFile",
		trace.WithAttributes(attribute.String("file_item.id", item.ID)))
	defer span.End()

	taskID := uuid.NewString()

	claimed, err := o.store.FileItems.Claim(ctx, item.ID, taskID)
	if err != nil {
		o.log.Error(ctx, "failed to claim file item", "item_id", item.ID, "error", err)
		return
	}
	if !claimed {
		o.log.Debug(ctx, "file item already claimed", "item_id", item.ID)
		return
	}

	target, err := o.targets.RequestTarget(ctx, sctx, api.FileMetadata{Name: item.Name, Size: item.BytesToUpload})
	if err != nil {
		o.log.Error(ctx, "upload target request failed", "item_id", item.ID, "error", err)
		o.markFailed(ctx, item.ID, err)
		return
	}

	if err := o.provider.Session().StartTask(taskID, target.URL, target.Params, item.LocalPath); err != nil {
		o.log.Error(ctx, "failed to start transfer task", "item_id", item.ID, "error", err)
		o.markFailed(ctx, item.ID, err)
		return
	}

	o.log.Info(ctx, "transfer task started", "item_id", item.ID, "task_id", taskID)
}

// TaskProgress implements transfer.Delegate.
func (o *Orchestrator) TaskProgress(taskID string, sent, total int64) {
	ctx := context.Background()
	if err := o.store.FileItems.UpdateProgress(ctx, taskID, sent, total); err != nil {
		o.log.Error(ctx, "failed to record progress", "task_id", taskID, "error", err)
	}
}

// TaskCompleted implements transfer.Delegate. The callback carries no
// domain context; the item is found through its persisted task id. A
// missing item means the submission was cancelled while the task was in
// flight, and the event is dropped.
func (o *Orchestrator) TaskCompleted(taskID string, response []byte, err error) {

	ctx := context.Background()

	item, gerr := o.store.FileItems.GetByTaskID(ctx, taskID)
	if errors.Is(gerr, models.ErrNotFound) {
		o.log.Debug(ctx, "completion for orphaned task ignored", "task_id", taskID)
		return
	}
	if gerr != nil {
		o.log.Error(ctx, "failed to correlate task", "task_id", taskID, "error", gerr)
		return
	}

	if err != nil {
		if errors.Is(err, models.ErrSessionDisconnected) {
			// The transfer continues in the background session; the
			// host UI may dismiss now.
			o.log.Info(ctx, "upload continues in background", "item_id", item.ID)
			o.fireDismiss()
			return
		}
		o.log.Error(ctx, "upload failed", "item_id", item.ID, "error", err)
		o.markFailed(ctx, item.ID, err)
		return
	}

	apiID, perr := decodeFileID(response)
	if perr != nil {
		o.log.Error(ctx, "undecodable upload response", "item_id", item.ID, "error", perr)
		o.markFailed(ctx, item.ID, perr)
		return
	}

	if merr := o.store.FileItems.MarkUploaded(ctx, item.ID, apiID); merr != nil {
		o.log.Error(ctx, "failed to record uploaded file", "item_id", item.ID, "error", merr)
		return
	}

	o.log.Info(ctx, "file uploaded", "item_id", item.ID, "api_id", apiID)

	o.checkAllUploaded(ctx, item.SubmissionID)
}

// checkAllUploaded re-queries the durable state after each item event
// instead of keeping a counter: the store is the crash-safe source of
// truth, so the check is naturally resumable.
func (o *Orchestrator) checkAllUploaded(ctx context.Context, submissionID string) {

	sub, err := o.store.Submissions.GetByID(ctx, submissionID)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		o.log.Error(ctx, "failed to retrieve submission", "submission_id", submissionID, "error", err)
		return
	}

	items, err := o.store.FileItems.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		o.log.Error(ctx, "failed to retrieve file items", "submission_id", submissionID, "error", err)
		return
	}

	if !allUploaded(items) {
		return
	}

	if err := o.submit(ctx, sub, items); err != nil {
		o.log.Error(ctx, "submission failed", "submission_id", submissionID, "error", err)
	}
}

// submit issues the final create-submission call and, on success, deletes
// the now-complete local record together with its staged files. On failure
// the record is retained so the call can be re-attempted without
// re-uploading anything.
func (o *Orchestrator) submit(ctx context.Context, sub *models.Submission, items []*models.FileItem) error {

	ctx, span := o.tracer.Start(ctx, "submission.Submit",
		trace.WithAttributes(attribute.String("submission.id", sub.ID)))
	defer span.End()

	fileIDs := make([]string, 0, len(items))
	for _, item := range items {
		fileIDs = append(fileIDs, item.APIID)
	}

	sctx := api.SubmissionContext{
		CourseID:     sub.CourseID,
		AssignmentID: sub.AssignmentID,
		Comment:      sub.Comment,
	}

	if err := o.submitter.CreateSubmission(ctx, sctx, fileIDs); err != nil {
		if merr := o.store.Submissions.MarkSubmitFailed(ctx, sub.ID, err.Error()); merr != nil {
			o.log.Error(ctx, "failed to record submission error", "submission_id", sub.ID, "error", merr)
		}
		return fmt.Errorf("create submission: %w", err)
	}

	o.log.Info(ctx, "assignment submitted",
		"submission_id", sub.ID, "course_id", sub.CourseID, "assignment_id", sub.AssignmentID, "files", len(fileIDs))

	if err := o.composer.DeleteSubmission(ctx, sub.ID); err != nil {
		o.log.Error(ctx, "failed to delete completed submission", "submission_id", sub.ID, "error", err)
	}

	if err := o.guard.Stop(ctx); err != nil {
		o.log.Warn(ctx, "failed to stop background activity", "error", err)
	}

	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, itemID string, cause error) {
	if err := o.store.FileItems.MarkFailed(ctx, itemID, cause.Error()); err != nil && !errors.Is(err, models.ErrNotFound) {
		o.log.Error(ctx, "failed to record upload error", "item_id", itemID, "error", err)
	}
}

func (o *Orchestrator) fireDismiss() {
	o.mu.Lock()
	fn := o.dismiss
	o.dismiss = nil
	o.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func allUploaded(items []*models.FileItem) bool {
	for _, item := range items {
		if !item.Uploaded() {
			return false
		}
	}
	return true
}

// decodeFileID extracts the backend file id from an upload response,
// accepting both string and numeric ids.
func decodeFileID(response []byte) (string, error) {

	var payload struct {
		ID any `json:"id"`
	}

	dec := json.NewDecoder(bytes.NewReader(response))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	switch v := payload.ID.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case json.Number:
		return v.String(), nil
	}

	return "", errors.New("upload response carries no file id")
}
