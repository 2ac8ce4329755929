// Package history keeps the terminal outcome of every job in badger so the
// task list can show what happened after a job left the active set.
package history

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"ehcalibre/internal/logging"
)

const (
	prefix     = "job:"
	DefaultTTL = 30 * 24 * time.Hour
	MaxList    = 500
)

// Entry is one finished job. Stage and Error are empty on success.
type Entry struct {
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (e Entry) Succeeded() bool { return e.Error == "" }

type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the store in dir. Entries expire after ttl; zero keeps them forever.
func Open(dir string, ttl time.Duration) (*Store, error) {
	return open(badger.DefaultOptions(dir), ttl)
}

// OpenInMemory keeps history in memory only.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), 0)
}

func open(opts badger.Options, ttl time.Duration) (*Store, error) {
	opts.Logger = badgerLogger{logging.Logger().With().Str("component", "history").Logger()}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// entryKey sorts by finish time: prefix, big-endian nanoseconds, job key.
func entryKey(e Entry) []byte {
	k := make([]byte, 0, len(prefix)+8+1+len(e.Key))
	k = append(k, prefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(e.FinishedAt.UnixNano()))
	k = append(k, ':')
	return append(k, e.Key...)
}

// Record stores e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry(entryKey(e), data)
		if s.ttl > 0 {
			be = be.WithTTL(s.ttl)
		}
		return txn.SetEntry(be)
	})
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}

	out := make([]Entry, 0, min(limit, 64))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(prefix), bytes.Repeat([]byte{0xff}, 9)...)
		for it.Seek(seek); it.Valid() && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode %q: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// badgerLogger routes badger's own logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.log.Trace().Msgf(f, v...) }
