// Package eventloop provides the single cooperative "UI thread" of a session.
//
// State owned by the loop (the queue, the overlay) is only touched by
// functions running inside Run. Blocking work is started with Go, runs on a
// tracked goroutine, and reports back by posting its completion to the loop.
package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
)

// Loop runs posted functions one at a time.
type Loop struct {
	queue chan func()
	done  chan struct{}

	stopOnce sync.Once
	tasks    conc.WaitGroup
	log      *slog.Logger
}

// New creates a loop whose post buffer holds size pending functions.
func New(size int, log *slog.Logger) *Loop {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Run executes posted functions until ctx is cancelled or Stop is called.
// It must be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event loop handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Post schedules fn on the loop. It returns false once the loop has stopped.
// Post blocks while the buffer is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call posts fn and waits for it to run. It must not be used from inside the
// loop. Returns false if the loop stopped before fn ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Go runs task on a background goroutine and posts done(err) back to the
// loop. A panicking task is reported to done as an error. If the loop has
// stopped by the time the task finishes, done is dropped.
func (l *Loop) Go(ctx context.Context, task func(context.Context) error, done func(error)) {
	l.tasks.Go(func() {
		err := l.safe(ctx, task)
		if done == nil {
			return
		}
		if !l.Post(func() { done(err) }) {
			l.log.Debug("event loop stopped, dropping task result", "error", err)
		}
	})
}

func (l *Loop) safe(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Wait blocks until every task started with Go has finished.
func (l *Loop) Wait() {
	l.tasks.Wait()
}

// Stop ends Run. Pending posted functions are discarded. Safe to call twice.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
