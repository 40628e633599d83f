package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// WorkFunc is the signature for work started by a [Group].
type WorkFunc func(ctx context.Context) error

// Group runs blocking work, such as sync sends on separate clients or
// the poll loops of several clients, with a concurrency limit.
type Group struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	sem      chan struct{}
	shutdown atomic.Bool
	errs     []error
}

// NewGroup creates a Group running at most maxConcurrent functions at
// once. If maxConcurrent <= 0, concurrency is unlimited.
func NewGroup(maxConcurrent int) *Group {
	g := &Group{}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Task tracks one function started by [Group.Go].
type Task struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Done returns a channel that is closed when the task completes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err blocks until the task completes and returns its error.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Cancel cancels the task's context.
func (t *Task) Cancel() {
	t.cancel()
}

// Go launches fn in a new goroutine managed by the group.
func (g *Group) Go(ctx context.Context, fn WorkFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	g.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			close(t.done)
			g.wg.Done()
		}()

		if g.sem != nil {
			select {
			case g.sem <- struct{}{}:
				defer func() {
					<-g.sem
				}()
			case <-ctx.Done():
				t.err = ctx.Err()
				g.recordErr(t.err)
				return
			}
		}

		if g.shutdown.Load() {
			t.err = ErrGroupShutdown
			g.recordErr(t.err)
			return
		}

		t.err = fn(ctx)
		if t.err != nil {
			g.recordErr(t.err)
		}
	}()

	return t
}

// Run drives c with [Client.Run] until ctx ends or the task is cancelled.
func (g *Group) Run(ctx context.Context, c *Client) *Task {
	return g.Go(ctx, c.Run)
}

// Wait blocks until every task in the group completes and returns their
// errors joined.
func (g *Group) Wait() error {
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	return errors.Join(g.errs...)
}

// Shutdown prevents tasks that have not started yet from running.
func (g *Group) Shutdown() {
	g.shutdown.Store(true)
}

func (g *Group) recordErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, err)
}
