// Package queue holds page views between ingestion and the bulk write into the
// primary store. Entries are delivered at least once: readers Peek a window,
// process it, then Trim through the last sequence they handled.
package queue

import "context"

// Entry is one queued payload. Seq increases with every push.
type Entry struct {
	Seq     uint64
	Payload []byte
}

// Queue is a durable FIFO queue. Push must be safe for concurrent use.
type Queue interface {
	Push(ctx context.Context, payload []byte) error
	// Peek returns up to n of the oldest entries without removing them.
	Peek(ctx context.Context, n int) ([]Entry, error)
	// Trim removes every entry with Seq <= throughSeq. Trimming the same
	// window twice is harmless.
	Trim(ctx context.Context, throughSeq uint64) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// LastSeq returns the sequence of the newest entry in a peeked window.
func LastSeq(entries []Entry) uint64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Seq
}
