package services

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrRunInProgress is returned when a run for the same user is already
// queued or executing.
var ErrRunInProgress = errors.New("a sorting run is already in progress for this user")

// ErrQueueFull is returned when the run queue cannot accept more work.
var ErrQueueFull = errors.New("run queue is full")

type RunKind string

const (
	RunSort   RunKind = "sort"
	RunRevert RunKind = "revert"
)

// RunRequest describes one queued run. The session id is assigned at
// enqueue time so callers can poll it immediately.
type RunRequest struct {
	SessionID       string
	Email           string
	Kind            RunKind
	FlagNames       []string // sort: active flag names at enqueue time
	TargetSessionID string   // revert: the session being reverted
}

// RunExecutor executes one run to completion. *Runner implements it.
type RunExecutor interface {
	Execute(ctx context.Context, req RunRequest)
}

// Dispatcher serializes runs through a single worker goroutine. Session
// records are the only externally observable progress; there is no
// cancellation beyond process shutdown.
type Dispatcher struct {
	executor RunExecutor
	queue    chan RunRequest

	mu       sync.Mutex
	inflight map[string]bool
}

func NewDispatcher(executor RunExecutor, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Dispatcher{
		executor: executor,
		queue:    make(chan RunRequest, queueSize),
		inflight: make(map[string]bool),
	}
}

// Start launches the worker goroutine; it exits when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.worker(ctx)
}

func (d *Dispatcher) worker(ctx context.Context) {
	log.Println("Run dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Run dispatcher stopped")
			return
		case req := <-d.queue:
			d.executor.Execute(ctx, req)
			d.release(req.Email)
		}
	}
}

// Enqueue admits at most one run per user at a time; a second enqueue while
// the first is queued or executing returns ErrRunInProgress.
func (d *Dispatcher) Enqueue(req RunRequest) error {
	d.mu.Lock()
	if d.inflight[req.Email] {
		d.mu.Unlock()
		return ErrRunInProgress
	}
	d.inflight[req.Email] = true
	d.mu.Unlock()

	select {
	case d.queue <- req:
		return nil
	default:
		d.release(req.Email)
		return ErrQueueFull
	}
}

// Busy reports whether a run for the user is queued or executing.
func (d *Dispatcher) Busy(email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[email]
}

func (d *Dispatcher) release(email string) {
	d.mu.Lock()
	delete(d.inflight, email)
	d.mu.Unlock()
}
