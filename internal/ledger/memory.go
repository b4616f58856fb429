package ledger

import (
	"context"
	"sync"
)

// MemoryLedger keeps chains in process. Used for local runs and tests.
type MemoryLedger struct {
	mu     sync.RWMutex
	chains map[string][]Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		chains: make(map[string][]Entry),
	}
}

func (m *MemoryLedger) Append(ctx context.Context, key, value []byte) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.chains[string(key)]

	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}

	e := Seal(key, uint64(len(chain)), prev, value)
	m.chains[string(key)] = append(chain, e)

	return e, nil
}

func (m *MemoryLedger) History(ctx context.Context, key []byte, offset, limit int, ascending bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[string(key)]

	start, stop, ok := Window(len(chain), offset, limit, ascending)
	if !ok {
		return []Entry{}, nil
	}

	out := make([]Entry, stop-start+1)
	copy(out, chain[start:stop+1])

	if !ascending {
		Reverse(out)
	}

	return out, nil
}

func (m *MemoryLedger) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryLedger) Close() error {
	return nil
}
