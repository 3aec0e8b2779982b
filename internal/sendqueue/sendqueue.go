// Package sendqueue implements the per-session outbound FIFO of
// wire.ServerCommand values: a non-blocking enqueue, a blocking dequeue with a
// deadline, and an idempotent close that drops all further sends.
package sendqueue

import (
	"sync"
	"time"

	"github.com/rhythmmp/server/internal/wire"
)

// DefaultCapacity is the channel buffer size used when no explicit capacity
// is requested. It matches the teacher's buffered send channel sizing.
const DefaultCapacity = 256

// Queue is a bounded, closable FIFO of outbound ServerCommands. Enqueue never
// blocks forever: once the buffer is full, the newest command is dropped
// rather than stalling the caller, since callers never inspect the return
// value (mirroring spec behavior for both unbounded-drop-on-close and
// bounded-drop-newest policies).
type Queue struct {
	ch chan wire.ServerCommand

	mu     sync.Mutex
	closed bool
}

// New creates a Queue with the given buffer capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan wire.ServerCommand, capacity)}
}

// Enqueue appends cmd to the queue. It never blocks: if the queue is closed
// or full, the command is silently dropped.
func (q *Queue) Enqueue(cmd wire.ServerCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- cmd:
	default:
		// Buffer full: drop-newest. The writer will fall behind rather than
		// a slow client backing up an unbounded amount of memory.
	}
}

// Dequeue blocks for up to deadline waiting for a command. ok is false on a
// deadline timeout (queue still open, just empty) or once a closed queue has
// been fully drained, the two of which callers must tell apart: closed is
// true only in the latter case, at which point the writer loop should exit
// rather than keep polling.
func (q *Queue) Dequeue(deadline time.Duration) (cmd wire.ServerCommand, ok bool, closed bool) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case cmd, open := <-q.ch:
		if !open {
			return wire.ServerCommand{}, false, true
		}
		return cmd, true, false
	case <-timer.C:
		return wire.ServerCommand{}, false, false
	}
}

// Close marks the queue closed: all subsequent Enqueue calls are no-ops, and
// Dequeue drains any already-buffered commands before reporting closed. Close
// is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
