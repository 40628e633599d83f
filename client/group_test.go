package client_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adamwoolhether/fbclient/client"
)

func TestTask_Err(t *testing.T) {
	wantErr := errors.New("boom")
	g := client.NewGroup(0)

	task := g.Go(t.Context(), func(ctx context.Context) error {
		return wantErr
	})

	if err := task.Err(); !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestTask_Done(t *testing.T) {
	g := client.NewGroup(0)

	task := g.Go(t.Context(), func(ctx context.Context) error {
		return nil
	})

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel was not closed in time")
	}
	if err := task.Err(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestTask_Cancel(t *testing.T) {
	g := client.NewGroup(0)

	task := g.Go(t.Context(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	task.Cancel()

	if err := task.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected %v, got %v", context.Canceled, err)
	}
}

func TestGroup_Wait_JoinedErrors(t *testing.T) {
	err1 := errors.New("error one")
	err2 := errors.New("error two")
	g := client.NewGroup(0)

	g.Go(t.Context(), func(ctx context.Context) error { return err1 })
	g.Go(t.Context(), func(ctx context.Context) error { return nil })
	g.Go(t.Context(), func(ctx context.Context) error { return err2 })

	err := g.Wait()
	if err == nil {
		t.Fatal("expected joined error, got nil")
	}
	if !errors.Is(err, err1) {
		t.Errorf("expected error to contain %v", err1)
	}
	if !errors.Is(err, err2) {
		t.Errorf("expected error to contain %v", err2)
	}
}

func TestGroup_ConcurrencyLimit(t *testing.T) {
	const limit = 2
	const total = 5

	g := client.NewGroup(limit)

	var running atomic.Int32
	var maxRunning atomic.Int32
	barrier := make(chan struct{})

	for range total {
		g.Go(t.Context(), func(ctx context.Context) error {
			cur := running.Add(1)
			for {
				old := maxRunning.Load()
				if cur <= old || maxRunning.CompareAndSwap(old, cur) {
					break
				}
			}
			<-barrier
			running.Add(-1)
			return nil
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(barrier)

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := maxRunning.Load(); got > limit {
		t.Errorf("expected at most %d concurrent, got %d", limit, got)
	}
}

func TestGroup_Shutdown(t *testing.T) {
	g := client.NewGroup(1)

	block := make(chan struct{})
	started := make(chan struct{})
	g.Go(t.Context(), func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	var ran atomic.Bool
	queued := g.Go(t.Context(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	g.Shutdown()
	close(block)

	if err := queued.Err(); !errors.Is(err, client.ErrGroupShutdown) {
		t.Errorf("expected %v, got %v", client.ErrGroupShutdown, err)
	}
	if ran.Load() {
		t.Error("expected queued work not to run after shutdown")
	}
}

func TestGroup_RunClients(t *testing.T) {
	srvA := &fakeServer{respond: func(string) string { return httpResponse("200 OK", `"a"`) }}
	srvB := &fakeServer{respond: func(string) string { return httpResponse("200 OK", `"b"`) }}
	a := newClient(t, srvA)
	b := newClient(t, srvB)

	resA, err := a.Send(t.Context(), client.Request{Method: client.MethodGet, URL: "a.example.com", Path: "/a.json", Async: true})
	if err != nil {
		t.Fatalf("send a: %v", err)
	}
	resB, err := b.Send(t.Context(), client.Request{Method: client.MethodGet, URL: "b.example.com", Path: "/b.json", Async: true})
	if err != nil {
		t.Fatalf("send b: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	g := client.NewGroup(0)
	g.Run(ctx, a)
	g.Run(ctx, b)

	deadline := time.Now().Add(2 * time.Second)
	for a.TaskCount() > 0 || b.TaskCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("clients did not drain before deadline")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resA.Payload(); got != `"a"` {
		t.Errorf("exp %q, got %q", `"a"`, got)
	}
	if got := resB.Payload(); got != `"b"` {
		t.Errorf("exp %q, got %q", `"b"`, got)
	}
}
