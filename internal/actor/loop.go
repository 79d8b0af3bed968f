package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned when an operation is submitted to a loop (or a
// registry) that has already been shut down.
var ErrStopped = errors.New("actor: stopped")

// Loop is a single-writer mailbox. Every operation submitted through Call runs
// on the loop's own goroutine, one at a time, in submission order. State owned
// by the loop needs no other locking.
type Loop struct {
	inbox    chan func()
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// NewLoop starts a loop whose inbox holds up to buffer pending operations.
func NewLoop(buffer int) *Loop {
	l := &Loop{
		inbox:  make(chan func(), buffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case fn := <-l.inbox:
			fn()
		case <-l.done:
			return
		}
	}
}

// Call runs fn on the loop and waits for it to finish. The context only bounds
// the wait for a free inbox slot: once queued, fn always runs to completion
// unless the loop is stopped first. A panic inside fn is returned as an error
// and does not kill the loop.
func (l *Loop) Call(ctx context.Context, fn func()) (err error) {
	finished := make(chan struct{})
	var panicErr error
	wrapped := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("actor: operation panicked: %v", r)
			}
		}()
		fn()
	}

	select {
	case l.inbox <- wrapped:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return panicErr
	case <-l.exited:
		select {
		case <-finished:
			return panicErr
		default:
			return ErrStopped
		}
	}
}

// Stop terminates the loop after the operation in flight (if any) returns.
// Queued operations that never started fail with ErrStopped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
	<-l.exited
}
