// Package redisledger stores ledger chains as Redis lists, one list per key.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/medledger/internal/ledger"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix      string
	ConnectRetries int
	ConnectDelay   time.Duration

	// optimistic append attempts before giving up on a contended key
	MaxTxRetries int
}

type Ledger struct {
	redisdb      *redis.Client
	prefix       string
	maxTxRetries int
}

// stored form of one list element
type sealed struct {
	Seq   uint64 `json:"seq"`
	Prev  string `json:"prev"`
	Hash  string `json:"hash"`
	Value []byte `json:"value"`
}

func New(cfg Config) *Ledger {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "medledger:audit:"
	}

	retries := cfg.MaxTxRetries
	if retries <= 0 {
		retries = 5
	}

	return &Ledger{redisdb: redisdb, prefix: prefix, maxTxRetries: retries}
}

// Dial connects and pings with a fixed number of attempts and a fixed delay
// between them, then gives up.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Ledger, error) {
	attempts := cfg.ConnectRetries
	if attempts <= 0 {
		attempts = 3
	}

	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	l := New(cfg)

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = l.Ping(ctx)

		if err == nil {
			log.Info("ledger connected", "addr", cfg.Addr, "attempt", attempt)
			return l, nil
		}

		log.Warn("ledger connect failed", "addr", cfg.Addr, "attempt", attempt, "err", err)

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			_ = l.Close()
			return nil, ctx.Err()
		}
	}

	_ = l.Close()

	return nil, fmt.Errorf("connect to ledger after %d attempts: %w", attempts, err)
}

func (l *Ledger) Ping(ctx context.Context) error {
	err := l.redisdb.Ping(ctx).Err()

	if err != nil {
		return unavailable(err)
	}

	return nil
}

func (l *Ledger) Close() error {
	return l.redisdb.Close()
}

// Append reads the chain head and pushes the sealed entry inside one WATCH
// transaction, so concurrent appends on a key never fork the chain.
func (l *Ledger) Append(ctx context.Context, key, value []byte) (ledger.Entry, error) {
	rkey := l.redisKey(key)

	for attempt := 0; attempt < l.maxTxRetries; attempt++ {
		var out ledger.Entry

		err := l.redisdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.LLen(ctx, rkey).Result()

			if err != nil {
				return err
			}

			prev := ""

			if n > 0 {
				raw, err := tx.LIndex(ctx, rkey, n-1).Result()

				if err != nil {
					return err
				}

				head, err := decode(key, raw, uint64(n-1))

				if err != nil {
					return err
				}

				prev = head.Hash
			}

			out = ledger.Seal(key, uint64(n), prev, value)

			payload, err := encode(out)

			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPush(ctx, rkey, payload)
				return nil
			})

			return err
		}, rkey)

		if err == nil {
			return out, nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if errors.Is(err, ledger.ErrChainBroken) {
			return ledger.Entry{}, err
		}

		return ledger.Entry{}, unavailable(err)
	}

	return ledger.Entry{}, fmt.Errorf("%w: append contention on %s", ledger.ErrUnavailable, rkey)
}

func (l *Ledger) History(ctx context.Context, key []byte, offset, limit int, ascending bool) ([]ledger.Entry, error) {
	rkey := l.redisKey(key)

	n, err := l.redisdb.LLen(ctx, rkey).Result()

	if err != nil {
		return nil, unavailable(err)
	}

	start, stop, ok := ledger.Window(int(n), offset, limit, ascending)

	if !ok {
		return []ledger.Entry{}, nil
	}

	raws, err := l.redisdb.LRange(ctx, rkey, int64(start), int64(stop)).Result()

	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]ledger.Entry, 0, len(raws))

	for i, raw := range raws {
		e, err := decode(key, raw, uint64(start+i))

		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	if !ascending {
		ledger.Reverse(out)
	}

	return out, nil
}

func (l *Ledger) redisKey(key []byte) string {
	return l.prefix + string(key)
}

func encode(e ledger.Entry) (string, error) {
	b, err := json.Marshal(sealed{Seq: e.Seq, Prev: e.PrevHash, Hash: e.Hash, Value: e.Value})

	if err != nil {
		return "", err
	}

	return string(b), nil
}

// decode reads one list element. index is the element's position in the
// list, which is its seq in an unbroken chain.
func decode(key []byte, raw string, index uint64) (ledger.Entry, error) {
	var s sealed

	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ledger.Entry{}, &ledger.BrokenEntryError{Seq: index, Err: fmt.Errorf("undecodable entry: %w", err)}
	}

	return ledger.Entry{
		Key:      append([]byte(nil), key...),
		Seq:      s.Seq,
		Value:    s.Value,
		PrevHash: s.Prev,
		Hash:     s.Hash,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
}
