package services

import (
	"context"
	"testing"
	"time"
)

type blockingExecutor struct {
	started chan RunRequest
	release chan struct{}
}

func (e *blockingExecutor) Execute(ctx context.Context, req RunRequest) {
	e.started <- req
	<-e.release
}

func TestDispatcherExecutesQueuedRuns(t *testing.T) {
	exec := &blockingExecutor{started: make(chan RunRequest, 2), release: make(chan struct{})}
	close(exec.release)

	d := NewDispatcher(exec, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.Enqueue(RunRequest{SessionID: "s1", Email: "a@example.com", Kind: RunSort}); err != nil {
		t.Fatal(err)
	}

	select {
	case req := <-exec.started:
		if req.SessionID != "s1" {
			t.Fatalf("unexpected request executed: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued run was never executed")
	}
}

func TestDispatcherSingleFlightPerUser(t *testing.T) {
	exec := &blockingExecutor{started: make(chan RunRequest, 2), release: make(chan struct{})}

	d := NewDispatcher(exec, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.Enqueue(RunRequest{SessionID: "s1", Email: "a@example.com", Kind: RunSort}); err != nil {
		t.Fatal(err)
	}
	<-exec.started // first run is now executing

	if err := d.Enqueue(RunRequest{SessionID: "s2", Email: "a@example.com", Kind: RunSort}); err != ErrRunInProgress {
		t.Fatalf("expected ErrRunInProgress for same user, got %v", err)
	}
	if !d.Busy("a@example.com") {
		t.Fatal("user must be reported busy while the run executes")
	}

	// A different user is not blocked.
	if err := d.Enqueue(RunRequest{SessionID: "s3", Email: "b@example.com", Kind: RunSort}); err != nil {
		t.Fatalf("other users must not be blocked: %v", err)
	}

	close(exec.release)
	<-exec.started // second user's run

	// Once the first run finishes the user can enqueue again.
	deadline := time.After(2 * time.Second)
	for d.Busy("a@example.com") {
		select {
		case <-deadline:
			t.Fatal("user still busy after run finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := d.Enqueue(RunRequest{SessionID: "s4", Email: "a@example.com", Kind: RunSort}); err != nil {
		t.Fatalf("re-enqueue after completion failed: %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	exec := &blockingExecutor{started: make(chan RunRequest, 1), release: make(chan struct{})}

	d := NewDispatcher(exec, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.Enqueue(RunRequest{SessionID: "s1", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	<-exec.started // worker is blocked inside the first run

	// Fills the single queue slot.
	if err := d.Enqueue(RunRequest{SessionID: "s2", Email: "b@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(RunRequest{SessionID: "s3", Email: "c@example.com"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	// The rejected user is not left marked busy.
	if d.Busy("c@example.com") {
		t.Fatal("rejected enqueue must release the single-flight guard")
	}

	close(exec.release)
}
