// Package transfer owns the long-lived background transfer session and
// multiplexes many file uploads through it.
//
// Tasks carry no domain state: progress and completion are delivered to a
// process-wide Delegate keyed only by an opaque correlation identifier, so
// the owner can route events back to its own records even after the session
// has been recreated.
package transfer

import (
	"sync"

	"github.com/ndrozd/lmsubmit/internal/logging"
)

// Delegate receives task lifecycle events. Callbacks arrive on arbitrary
// goroutines and must be treated as concurrent with foreground calls.
type Delegate interface {
	// TaskProgress reports incremental upload progress.
	TaskProgress(taskID string, sent, total int64)

	// TaskCompleted reports the end of a task: either the raw response
	// body of a successful upload, or a non-nil error. A disconnection of
	// the whole session surfaces here as models.ErrSessionDisconnected.
	TaskCompleted(taskID string, response []byte, err error)
}

// Provider hands out the one live Session per (sessionID,
// sharedContainerID) pair. The session is constructed lazily and recreated
// with the same identifiers after invalidation; holders of an old reference
// are not retroactively updated.
type Provider struct {
	sessionID         string
	sharedContainerID string
	delegate          Delegate
	log               logging.Logger

	mu                sync.Mutex
	session           *Session
	completionHandler func()
}

func NewProvider(sessionID, sharedContainerID string, delegate Delegate, log logging.Logger) *Provider {
	return &Provider{
		sessionID:         sessionID,
		sharedContainerID: sharedContainerID,
		delegate:          delegate,
		log:               log,
	}
}

// SetCompletionHandler registers the callback invoked when the session's
// task set drains to zero, letting a host process checkpoint and exit.
func (p *Provider) SetCompletionHandler(fn func()) {
	p.mu.Lock()
	p.completionHandler = fn
	p.mu.Unlock()
}

// Session returns the current live session, creating one if none exists or
// the previous one was invalidated.
func (p *Provider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil && !p.session.Invalidated() {
		return p.session
	}

	p.session = newSession(p.sessionID, p.sharedContainerID, p.delegate, p.onDrained, p.log)
	return p.session
}

func (p *Provider) onDrained() {
	p.mu.Lock()
	fn := p.completionHandler
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}
