// Package ledger is the append-only, hash-chained store behind the audit log.
//
// Values are opaque bytes grouped under a key. Each entry carries its position
// in the key's chain and a SHA-256 over the previous hash, its position and its
// value, so a rewritten or removed entry breaks every hash after it.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnavailable = errors.New("ledger unavailable")
	ErrChainBroken = errors.New("ledger chain broken")
)

// BrokenEntryError pins a chain break to the entry that could not be read.
// It matches ErrChainBroken under errors.Is.
type BrokenEntryError struct {
	Seq uint64
	Err error
}

func (e *BrokenEntryError) Error() string {
	return fmt.Sprintf("%v: entry %d: %v", ErrChainBroken, e.Seq, e.Err)
}

func (e *BrokenEntryError) Unwrap() []error {
	return []error{ErrChainBroken, e.Err}
}

type Entry struct {
	Key      []byte
	Seq      uint64
	Value    []byte
	PrevHash string
	Hash     string
}

// Ledger has no operation that removes or rewrites an entry.
type Ledger interface {
	Append(ctx context.Context, key, value []byte) (Entry, error)
	History(ctx context.Context, key []byte, offset, limit int, ascending bool) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Window maps an offset/limit page over n entries to inclusive list indices.
// Descending windows count the offset from the newest entry.
func Window(n, offset, limit int, ascending bool) (start, stop int, ok bool) {
	if n <= 0 || limit <= 0 || offset < 0 || offset >= n {
		return 0, 0, false
	}

	if ascending {
		start = offset
		stop = offset + limit - 1
		if stop > n-1 {
			stop = n - 1
		}
		return start, stop, true
	}

	stop = n - 1 - offset
	start = stop - limit + 1
	if start < 0 {
		start = 0
	}
	return start, stop, true
}

// Reverse flips entries in place.
func Reverse(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
