package queue

import (
	"context"
	"sync"

	"pulse/internal/apperrors"
)

// MemoryQueue is a Queue backed by a slice. Contents are lost on restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []Entry
	nextSeq uint64
	closed  bool

	// PushErr, when set, is called with the 1-based push count. A non-nil
	// result is returned by Push instead of queueing.
	PushErr func(attempt int) error
	pushes  int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{nextSeq: 1}
}

func (q *MemoryQueue) Push(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return apperrors.ErrQueueClosed
	}

	q.pushes++
	if q.PushErr != nil {
		if err := q.PushErr(q.pushes); err != nil {
			return err
		}
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	q.entries = append(q.entries, Entry{Seq: q.nextSeq, Payload: data})
	q.nextSeq++
	return nil
}

func (q *MemoryQueue) Peek(ctx context.Context, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, apperrors.ErrQueueClosed
	}
	if n <= 0 || len(q.entries) == 0 {
		return nil, nil
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}

	out := make([]Entry, n)
	copy(out, q.entries[:n])
	return out, nil
}

func (q *MemoryQueue) Trim(ctx context.Context, throughSeq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return apperrors.ErrQueueClosed
	}

	i := 0
	for i < len(q.entries) && q.entries[i].Seq <= throughSeq {
		i++
	}
	q.entries = append([]Entry(nil), q.entries[i:]...)
	return nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, apperrors.ErrQueueClosed
	}
	return len(q.entries), nil
}

// Pushes reports how many Push calls reached the queue, including failed ones.
func (q *MemoryQueue) Pushes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushes
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
