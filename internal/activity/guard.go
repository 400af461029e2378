// Package activity wraps the host platform's "extend my execution time"
// facility behind a guard that allows at most one outstanding request.
//
// The platform primitive is injected as a Requester so hosts with real
// suspension semantics (app extensions, mobile runtimes) can plug in their
// own, and tests can count and steer requests.
package activity

import (
	"context"
	"sync"

	"github.com/ndrozd/lmsubmit/internal/logging"
	"github.com/ndrozd/lmsubmit/internal/models"
)

// Requester is the platform facility that grants extra execution time.
//
// The block is invoked with expired=false once the extension is granted and
// must not return until the work is finished. It may be invoked again, with
// expired=true, when the platform revokes the extension early. A platform
// that cannot grant the extension at all invokes the block exactly once
// with expired=true.
type Requester interface {
	PerformExpiringActivity(reason string, block func(expired bool))
}

// HostRequester grants every request and never expires it. Plain Go
// processes are not suspended the way app/extension processes are, so the
// guard only has teeth when the host supplies a platform Requester.
type HostRequester struct{}

func (HostRequester) PerformExpiringActivity(_ string, block func(expired bool)) {
	go block(false)
}

type guardState int

const (
	stateIdle guardState = iota
	stateStarting
	stateActive
)

// Guard serializes access to the platform extension. Concurrent Start calls
// share one underlying request; Stop releases it; the abort handler fires
// exactly once if the platform revokes the extension before Stop is called.
type Guard struct {
	requester    Requester
	reason       string
	abortHandler func()
	log          logging.Logger

	mu      sync.Mutex
	state   guardState
	waiters []chan error
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewGuard(requester Requester, reason string, abortHandler func(), log logging.Logger) *Guard {
	return &Guard{requester: requester, reason: reason, abortHandler: abortHandler, log: log}
}

// Start requests the execution extension and resolves once it is granted,
// or with models.ErrFailedToStartBackgroundActivity when the platform
// denies or revokes it before granting. Calling Start while a request is
// already outstanding does not issue a second platform request: the caller
// is satisfied from the same one.
func (g *Guard) Start(ctx context.Context) error {

	g.mu.Lock()
	switch g.state {
	case stateActive:
		g.mu.Unlock()
		return nil
	case stateStarting:
		ch := make(chan error, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()
		return g.wait(ctx, ch)
	}

	g.state = stateStarting
	g.stopped = false
	g.stopCh = make(chan struct{})
	g.doneCh = make(chan struct{})
	ch := make(chan error, 1)
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	go g.requester.PerformExpiringActivity(g.reason, g.block)

	return g.wait(ctx, ch)
}

func (g *Guard) wait(ctx context.Context, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) block(expired bool) {
	if !expired {
		g.mu.Lock()
		if g.state != stateStarting {
			// Stop or expiry won the race; nothing to hold open.
			g.mu.Unlock()
			return
		}
		g.state = stateActive
		g.notifyWaiters(nil)
		stop, done := g.stopCh, g.doneCh
		g.mu.Unlock()

		// Hold the platform extension until Stop (or abort) releases it.
		<-stop
		close(done)
		return
	}

	g.mu.Lock()
	switch g.state {
	case stateStarting:
		// Revoked before the grant was ever delivered.
		g.notifyWaiters(models.ErrFailedToStartBackgroundActivity)
		g.state = stateIdle
		g.mu.Unlock()
	case stateActive:
		g.state = stateIdle
		g.release()
		abort := g.abortHandler
		g.mu.Unlock()
		g.log.Warn(context.Background(), "background activity expired", "reason", g.reason)
		if abort != nil {
			abort()
		}
	default:
		g.mu.Unlock()
	}
}

// Stop releases the extension and resolves once the underlying block has
// fully returned. Stopping an inactive guard is a no-op.
func (g *Guard) Stop(ctx context.Context) error {

	g.mu.Lock()
	switch g.state {
	case stateIdle:
		g.mu.Unlock()
		return nil
	case stateStarting:
		// The grant has not arrived yet; withdraw the request.
		g.notifyWaiters(models.ErrFailedToStartBackgroundActivity)
		g.state = stateIdle
		g.release()
		g.mu.Unlock()
		return nil
	}

	g.state = stateIdle
	g.release()
	done := g.doneCh
	g.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifyWaiters and release are called with g.mu held.
func (g *Guard) notifyWaiters(err error) {
	for _, ch := range g.waiters {
		ch <- err
	}
	g.waiters = nil
}

func (g *Guard) release() {
	if !g.stopped {
		g.stopped = true
		close(g.stopCh)
	}
}
