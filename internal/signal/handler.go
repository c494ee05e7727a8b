// Package signal turns SIGINT and SIGTERM into context cancellation for
// forge commands.
//
// The first signal cancels the command context: the engine stops after the
// running node and the last checkpoint stays resumable. A second signal runs
// the force hook, which normally exits the process.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Handler listens for interrupt signals until Stop is called.
type Handler struct {
	ctx         context.Context //nolint:containedctx // handler owns the command context
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	sigChan     chan os.Signal
	received    atomic.Int32
	force       func()
}

// Option configures a Handler.
type Option func(*Handler)

// WithForce sets the hook run on the second signal.
func WithForce(fn func()) Option {
	return func(h *Handler) {
		h.force = fn
	}
}

// NewHandler creates a handler whose context derives from parent.
//
//	h := signal.NewHandler(ctx, signal.WithForce(func() { os.Exit(130) }))
//	defer h.Stop()
//	code := cli.Execute(h.Context(), info)
func NewHandler(parent context.Context, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		sigChan:     make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(h)
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()
	return h
}

// Context returns the context canceled by the first signal.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted is closed when the first signal arrives.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Signals returns how many signals were received.
func (h *Handler) Signals() int {
	return int(h.received.Load())
}

// Stop stops listening and cancels the context.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

func (h *Handler) handleSignal() {
	switch h.received.Add(1) {
	case 1:
		h.cancel()
		close(h.interrupted)
	case 2:
		if h.force != nil {
			h.force()
		}
	}
}

// listen keeps draining signals after the context is canceled so a second
// signal still reaches the force hook.
func (h *Handler) listen() {
	for {
		select {
		case <-h.done:
			return
		case <-h.sigChan:
			h.handleSignal()
		}
	}
}
