package core

// commit_gate.go bounds how many import commits run at once across all
// categories. A commit waits up to maxWait for a slot before failing with
// ErrTooManyImports. WaitForDrain lets shutdown wait for running commits.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when every commit slot stays busy for the
// whole wait. Clients should retry shortly.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// DefaultMaxConcurrentImports is the default number of parallel commits.
const DefaultMaxConcurrentImports = 3

// DefaultGateWait is how long a commit waits for a slot.
const DefaultGateWait = 5 * time.Second

// CommitGate is a semaphore over import commits.
type CommitGate struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewCommitGate allows at most maxConcurrent simultaneous commits.
func NewCommitGate(maxConcurrent int, maxWait time.Duration) *CommitGate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultGateWait
	}
	return &CommitGate{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must Release it.
func (g *CommitGate) Acquire(ctx context.Context) error {
	if g.TryAcquire() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.semaphore <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// TryAcquire takes a slot without waiting.
func (g *CommitGate) TryAcquire() bool {
	select {
	case g.semaphore <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (g *CommitGate) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	<-g.semaphore
}

// ActiveCount returns the number of running commits.
func (g *CommitGate) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Available returns the number of free slots.
func (g *CommitGate) Available() int {
	return cap(g.semaphore) - len(g.semaphore)
}

// WaitForDrain blocks until no commit is running or ctx ends.
func (g *CommitGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CommitGateStatus is a snapshot of the gate for monitoring.
type CommitGateStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current gate state.
func (g *CommitGate) Status() CommitGateStatus {
	return CommitGateStatus{
		Active:        g.ActiveCount(),
		Available:     g.Available(),
		MaxConcurrent: cap(g.semaphore),
	}
}
