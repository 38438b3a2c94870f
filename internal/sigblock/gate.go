// Package sigblock holds back asynchronous signals while a critical section
// runs and lets long-running commands be cancelled from a signal handler.
package sigblock

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/kobzarvs/qex/internal/logger"
)

// Gate passes signals to a handler, queueing them while it is blocked.
type Gate struct {
	mu      sync.Mutex
	depth   int
	queued  []os.Signal
	handler func(os.Signal)
}

// New returns an open gate delivering to handler. A nil handler drops
// signals.
func New(handler func(os.Signal)) *Gate {
	return &Gate{handler: handler}
}

// Block holds signals until the returned release func runs. Blocks nest;
// queued signals go out when the outermost one is released. Calling
// release more than once is harmless.
func (g *Gate) Block() (release func()) {
	if g == nil {
		return func() {}
	}
	g.mu.Lock()
	g.depth++
	g.mu.Unlock()

	var once sync.Once
	return func() { once.Do(g.release) }
}

func (g *Gate) release() {
	g.mu.Lock()
	g.depth--
	if g.depth > 0 {
		g.mu.Unlock()
		return
	}
	pending := g.queued
	g.queued = nil
	g.mu.Unlock()

	for _, sig := range pending {
		g.dispatch(sig)
	}
}

// Deliver hands sig to the handler, or queues it while blocked.
func (g *Gate) Deliver(sig os.Signal) {
	g.mu.Lock()
	if g.depth > 0 {
		g.queued = append(g.queued, sig)
		g.mu.Unlock()
		logger.Debug("signal queued", "signal", sig)
		return
	}
	g.mu.Unlock()
	g.dispatch(sig)
}

func (g *Gate) dispatch(sig os.Signal) {
	logger.Debug("signal delivered", "signal", sig)
	if g.handler != nil {
		g.handler(sig)
	}
}

// Watch routes the watched signals through the gate until ctx is done.
func (g *Gate) Watch(ctx context.Context) {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, Watched...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				g.Deliver(sig)
			}
		}
	}()
}

// Interrupter cancels the command that is currently running.
type Interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Begin returns a context for one command. The returned func must be
// called when the command finishes.
func (i *Interrupter) Begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()
	return ctx, func() {
		i.mu.Lock()
		i.cancel = nil
		i.mu.Unlock()
		cancel()
	}
}

// Interrupt cancels the running command. It reports false when none runs.
func (i *Interrupter) Interrupt() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel == nil {
		return false
	}
	i.cancel()
	i.cancel = nil
	return true
}
