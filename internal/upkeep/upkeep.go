// Package upkeep coordinates orderly startup and shutdown of background
// workers from the host process's main control loop.
//
// Workers are started with Spawn and receive a stop channel they must watch.
// Keepalive blocks the main goroutine until the process receives a shutdown
// signal or a worker exits on its own. Shutdown then signals every worker,
// runs the registered callbacks and waits up to a timeout before abandoning
// stragglers: shutdown never hangs the host process indefinitely.
//
// If a second signal arrives while the process is shutting down, the process
// exits immediately.
package upkeep

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

// ErrShutdownTimeout is returned by Shutdown when one or more workers did
// not stop within the timeout and were abandoned. It is logged and reported,
// but it is not fatal to the host process.
var ErrShutdownTimeout = errors.New("shutdown timed out waiting for background workers")

// Handle identifies a spawned background worker.
type Handle struct {
	name     string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Name returns the worker name given to Spawn.
func (h *Handle) Name() string {
	return h.name
}

// Done returns a channel closed when the worker's function has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// signalStop asks the worker to stop. Idempotent.
func (h *Handle) signalStop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Upkeep owns the lifecycle of the process's background workers.
// The zero value is not usable; create instances with New.
type Upkeep struct {
	mu        sync.Mutex
	handles   []*Handle
	callbacks []func()
	exited    chan *Handle
	signals   chan os.Signal
	clock     clockz.Clock
	exit      func(code int)
}

// New creates an upkeep controller using the real clock.
func New() *Upkeep {
	return NewWithClock(clockz.RealClock)
}

// NewWithClock creates an upkeep controller with an injected clock,
// enabling deterministic shutdown-timeout tests.
func NewWithClock(clock clockz.Clock) *Upkeep {
	return &Upkeep{
		exited:  make(chan *Handle, 16),
		signals: make(chan os.Signal, 2),
		clock:   clock,
		exit:    os.Exit,
	}
}

// Spawn starts run on a dedicated background goroutine and returns a handle
// for the host's shutdown sequence. The run function must return promptly
// once the stop channel is closed.
func (u *Upkeep) Spawn(name string, run func(stop <-chan struct{})) *Handle {
	h := &Handle{
		name: name,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	u.mu.Lock()
	u.handles = append(u.handles, h)
	u.mu.Unlock()

	go func() {
		defer func() {
			close(h.done)
			select {
			case u.exited <- h:
			default:
			}
		}()
		run(h.stop)
	}()

	return h
}

// OnShutdown registers a callback executed during Shutdown, after workers
// are signalled and before they are waited on. Callbacks run in
// registration order.
func (u *Upkeep) OnShutdown(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.callbacks = append(u.callbacks, fn)
}

// Keepalive blocks the calling goroutine until the process receives SIGINT
// or SIGTERM, or until a spawned worker exits on its own.
//
// Returns true for a signal-initiated shutdown, false when a worker exited
// unexpectedly. Either way the caller should proceed with Shutdown.
func (u *Upkeep) Keepalive() bool {
	signal.Notify(u.signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-u.signals:
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
		go u.forceExitOnSecondSignal()
		return true
	case h := <-u.exited:
		log.Warnf("Background worker %q exited unexpectedly, initiating shutdown...", h.name)
		return false
	}
}

// forceExitOnSecondSignal exits the process immediately if another shutdown
// signal arrives while the graceful shutdown is in progress.
func (u *Upkeep) forceExitOnSecondSignal() {
	<-u.signals
	log.Warn("Received second signal during shutdown, exiting immediately")
	u.exit(1)
}

// Shutdown signals every worker to stop, runs the shutdown callbacks and
// waits up to timeout for all workers to finish. Workers still running when
// the timeout elapses are abandoned with a logged warning and
// ErrShutdownTimeout is returned.
func (u *Upkeep) Shutdown(timeout time.Duration) error {
	u.mu.Lock()
	handles := make([]*Handle, len(u.handles))
	copy(handles, u.handles)
	callbacks := make([]func(), len(u.callbacks))
	copy(callbacks, u.callbacks)
	u.mu.Unlock()

	for _, h := range handles {
		h.signalStop()
	}
	for _, fn := range callbacks {
		fn()
	}

	deadline := u.clock.After(timeout)
	expired := false
	var abandoned []string
	for _, h := range handles {
		if expired {
			select {
			case <-h.done:
			default:
				abandoned = append(abandoned, h.name)
			}
			continue
		}
		select {
		case <-h.done:
		case <-deadline:
			expired = true
			abandoned = append(abandoned, h.name)
		}
	}

	if len(abandoned) > 0 {
		log.WithField("workers", abandoned).Warn(
			"Shutdown timed out, abandoning background workers")
		return ErrShutdownTimeout
	}
	return nil
}
