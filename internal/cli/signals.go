package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandler cancels the run context on SIGINT/SIGTERM. The pipeline
// drains in-flight work itself; a second signal kills the process the
// usual way because the handler stops listening after the first.
type SignalHandler struct {
	signals  chan os.Signal
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewSignalHandler creates a handler around the given cancel func.
func NewSignalHandler(cancel context.CancelFunc) *SignalHandler {
	return &SignalHandler{
		signals: make(chan os.Signal, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// Start begins listening for signals.
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify optionally skips OS signal registration, so unit tests
// can inject signals without touching global state.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	go func() {
		defer close(h.done)

		select {
		case sig := <-h.signals:
			fmt.Fprintf(os.Stderr, "\nReceived %v, shutting down (in-flight merges finish first)...\n", sig)
			signal.Stop(h.signals)
			if h.cancel != nil {
				h.cancel()
			}
		case <-h.stopCh:
		}
	}()
}

// Inject delivers a signal directly, for tests.
func (h *SignalHandler) Inject(sig os.Signal) {
	h.signals <- sig
}

// Done is closed once the handler goroutine has exited.
func (h *SignalHandler) Done() <-chan struct{} {
	return h.done
}

// Stop detaches the handler without cancelling anything.
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}
