// Package servicectx provides the process context cancelled by SIGINT/SIGTERM and the graceful shutdown.
//
// A running export or import observes the cancelled context and fails with the "aborted" error,
// then the registered OnShutdown callbacks close the opened resources.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"

	"github.com/keboola/dbsnap/internal/pkg/idgenerator"
	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type Process struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	logger   log.Logger
	uniqueID string

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
	done        chan struct{}
	stopSignals func()
}

type Option func(c *config)

// OnShutdownFn is invoked with a non-cancelled context, the process context is already cancelled.
type OnShutdownFn func(ctx context.Context)

type config struct {
	uniqueID   string
	noSignals  bool
	logStartup bool
}

// SignalError is the cancellation cause of the process context, if a signal has been received.
type SignalError struct {
	Signal os.Signal
}

func (e SignalError) Error() string {
	return fmt.Sprintf("%s signal received", e.Signal)
}

// WithUniqueID sets unique ID of the process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

// WithoutSignals disables the SIGINT/SIGTERM handler, for example in tests.
func WithoutSignals() Option {
	return func(c *config) {
		c.noSignals = true
	}
}

func New(parent context.Context, logger log.Logger, opts ...Option) (*Process, error) {
	c := config{}
	for _, o := range opts {
		o(&c)
	}

	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	ctx, cancel := context.WithCancelCause(parent)
	proc := &Process{
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		uniqueID:    c.uniqueID,
		lock:        &sync.Mutex{},
		done:        make(chan struct{}),
		stopSignals: func() {},
	}

	// SIGINT and SIGTERM cancel the context, running operations stop at the next check
	if !c.noSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		stopCh := make(chan struct{})
		proc.stopSignals = sync.OnceFunc(func() {
			signal.Stop(sigCh)
			close(stopCh)
		})
		go func() {
			select {
			case sig := <-sigCh:
				logger.Infof(ctx, `Received "%s" signal, terminating.`, sig)
				cancel(SignalError{Signal: sig})
			case <-stopCh:
			}
		}()
	}

	logger.Debugf(ctx, `Process unique id "%s".`, proc.UniqueID())
	return proc, nil
}

func NewForTest(t *testing.T) *Process {
	t.Helper()

	proc, err := New(context.Background(), log.NewNopLogger(), WithoutSignals(), WithUniqueID("test_"+idgenerator.OperationId()))
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(context.Background(), errors.New("test cleanup"))
	})

	return proc
}

// Ctx returns context of the Process, it is cancelled on a signal or by the Shutdown.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// UniqueID returns unique process ID, it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Callbacks are invoked sequentially in LIFO order.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Error(v.ctx, `Cannot register OnShutdown callback: the process is terminating.`)
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}

// Shutdown cancels the process context with the cause and invokes the callbacks.
// Repeated calls wait for the first one.
func (v *Process) Shutdown(ctx context.Context, cause error) {
	v.lock.Lock()
	if v.terminating {
		v.lock.Unlock()
		<-v.done
		return
	}
	v.terminating = true
	callbacks := v.onShutdown
	v.lock.Unlock()

	defer close(v.done)
	v.stopSignals()
	v.cancel(cause)

	if cause != nil {
		v.logger.Debugf(ctx, "Exiting (%s).", cause)
	}

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i](ctx)
	}

	v.logger.Debug(ctx, "Exited.")
}
