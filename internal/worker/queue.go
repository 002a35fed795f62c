package worker

import (
	"context"
	"sync"
	"time"
)

// StopSignal is the only reserved message. A stage that reads it drains its
// in-flight work, relays it to every output queue exactly once and exits.
const StopSignal = "stop"

// Queue is an unbounded, goroutine-safe FIFO of messages.
// Put never blocks; Get blocks with a timeout.
type Queue struct {
	mu     sync.Mutex
	items  []any
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Put appends a message. It never blocks the caller.
func (q *Queue) Put(msg any) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	// Wake one waiter; a pending token is enough since waiters re-check the slice.
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Get removes and returns the oldest message.
// It returns ok=false when nothing arrived within timeout (timeout <= 0
// waits forever) and a non-nil error when ctx is done first.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (any, bool, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if msg, ok := q.pop(); ok {
			return msg, true, nil
		}

		select {
		case <-q.notify:
		case <-expired:
			// One last look: a Put may have raced with the timer.
			msg, ok := q.pop()
			return msg, ok, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (q *Queue) pop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	// Other waiters may still have work to pick up.
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return msg, true
}

// IsStop reports whether msg is the stop sentinel.
func IsStop(msg any) bool {
	s, ok := msg.(string)
	return ok && s == StopSignal
}
