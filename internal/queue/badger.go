package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"pulse/internal/apperrors"
)

var entryPrefix = []byte("q/")

// trimChunk bounds the number of deletes per badger transaction.
const trimChunk = 1000

// BadgerConfig holds BadgerDB queue configuration
type BadgerConfig struct {
	// Directory to store queue files. Ignored when InMemory is set.
	Dir string
	// InMemory mode (for testing)
	InMemory bool
	Logger   *slog.Logger
}

// BadgerQueue is a Queue persisted in BadgerDB. Entries are keyed by a
// big-endian sequence under entryPrefix so key order is FIFO order.
type BadgerQueue struct {
	db *badger.DB

	// mu serializes writers so sequence order matches commit order.
	mu      sync.Mutex
	nextSeq uint64
	length  int
	closed  bool
}

// OpenBadgerQueue opens (or creates) the queue and restores its position.
func OpenBadgerQueue(cfg BadgerConfig) (*BadgerQueue, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	opts = opts.
		WithLogger(newBadgerLogger(logger)).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithNumMemtables(3).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger queue: %w", err)
	}

	q := &BadgerQueue{db: db, nextSeq: 1}
	if err := q.restore(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// restore counts existing entries and resumes after the highest sequence.
func (q *BadgerQueue) restore() error {
	return q.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = entryPrefix

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			seq := decodeSeq(it.Item().Key())
			if seq >= q.nextSeq {
				q.nextSeq = seq + 1
			}
			q.length++
		}
		return nil
	})
}

func (q *BadgerQueue) Push(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return apperrors.ErrQueueClosed
	}

	seq := q.nextSeq
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(seq), payload)
	})
	if err != nil {
		return apperrors.Transient("queue push", err)
	}

	q.nextSeq++
	q.length++
	return nil
}

func (q *BadgerQueue) Peek(ctx context.Context, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.isClosed() {
		return nil, apperrors.ErrQueueClosed
	}
	if n <= 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, n)
	err := q.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = entryPrefix
		iterOpts.PrefetchSize = min(n, 100)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(entries) < n; it.Next() {
			item := it.Item()
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read queue entry: %w", err)
			}
			entries = append(entries, Entry{Seq: decodeSeq(item.Key()), Payload: payload})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Transient("queue peek", err)
	}
	return entries, nil
}

func (q *BadgerQueue) Trim(ctx context.Context, throughSeq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return apperrors.ErrQueueClosed
	}

	var keys [][]byte
	err := q.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = entryPrefix

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if decodeSeq(key) > throughSeq {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return apperrors.Transient("queue trim", err)
	}

	for start := 0; start < len(keys); start += trimChunk {
		chunk := keys[start:min(start+trimChunk, len(keys))]
		err := q.db.Update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return apperrors.Transient("queue trim", err)
		}
		q.length -= len(chunk)
	}
	return nil
}

func (q *BadgerQueue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, apperrors.ErrQueueClosed
	}
	return q.length, nil
}

// RunGC reclaims value log space left behind by trimmed entries. It returns
// nil when there was nothing to rewrite.
func (q *BadgerQueue) RunGC(discardRatio float64) error {
	if q.isClosed() {
		return apperrors.ErrQueueClosed
	}
	err := q.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

func (q *BadgerQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func encodeKey(seq uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], seq)
	return key
}

func decodeSeq(key []byte) uint64 {
	if len(key) < len(entryPrefix)+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(entryPrefix):])
}
