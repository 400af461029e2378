// Package assembly is the composition root of the upload pipeline. It
// builds the store-facing composer, the activity guard, the transfer
// provider and the orchestrator with the session identifiers of either the
// full app or an extension process, and exposes the narrow surface the host
// UI drives.
package assembly

import (
	"context"

	"github.com/ndrozd/lmsubmit/internal/activity"
	"github.com/ndrozd/lmsubmit/internal/api"
	"github.com/ndrozd/lmsubmit/internal/composer"
	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/orchestrator"
	"github.com/ndrozd/lmsubmit/internal/store"
	"github.com/ndrozd/lmsubmit/internal/transfer"
)

// Options selects the identifiers a process assembles the pipeline with.
// An app and its share extension use the same SharedContainerID so they see
// the same set of pending uploads.
type Options struct {
	// SessionID keys the background transfer session.
	SessionID string

	// SharedContainerID keys the storage container shared between the
	// host app and extension processes.
	SharedContainerID string

	// Requester is the platform background-activity facility. Defaults
	// to activity.HostRequester.
	Requester activity.Requester
}

type Assembly struct {
	composer *composer.Composer
	orch     *orchestrator.Orchestrator
	provider *transfer.Provider
	guard    *activity.Guard
	log      logging.Logger
}

func New(opts Options, st *store.Store, comp *composer.Composer,
	targets api.UploadTargetAPI, submitter api.CreateSubmissionAPI, log logging.Logger) *Assembly {

	if opts.Requester == nil {
		opts.Requester = activity.HostRequester{}
	}

	a := &Assembly{composer: comp, log: log}

	// When the platform revokes the execution extension the session is
	// invalidated: in-flight tasks surface as disconnected, which lets
	// the dismiss callback fire while the platform finishes the transfer.
	a.guard = activity.NewGuard(opts.Requester, "file submission upload", func() {
		a.provider.Session().Invalidate()
	}, log)

	a.orch = orchestrator.New(st, comp, targets, submitter, a.guard, log)
	a.provider = transfer.NewProvider(opts.SessionID, opts.SharedContainerID, a.orch, log)
	a.orch.SetProvider(a.provider)

	return a
}

// Provider exposes the transfer provider, e.g. so a host can register a
// background-events-drained completion handler.
func (a *Assembly) Provider() *transfer.Provider {
	return a.provider
}

// Start begins or resumes orchestration for a persisted submission.
// Idempotent: a second call while upload is in progress starts no
// duplicate tasks.
func (a *Assembly) Start(ctx context.Context, submissionID string) error {
	return a.orch.Start(ctx, submissionID)
}

// Cancel stops orchestration destructively: the submission and all its file
// items and staged files are deleted, whatever state they are in. In-flight
// transfer tasks are left to the platform; their late completions find no
// matching item and are dropped.
func (a *Assembly) Cancel(ctx context.Context, submissionID string) error {
	a.log.Info(ctx, "cancelling submission", "submission_id", submissionID)
	return a.composer.DeleteSubmission(ctx, submissionID)
}

// SetupShareUIDismissBlock registers a one-shot callback fired the first
// time any upload of the assembly's submissions keeps transferring in the
// background, so a share-sheet UI can close without waiting.
func (a *Assembly) SetupShareUIDismissBlock(fn func()) {
	a.orch.SetShareUIDismissBlock(fn)
}
