// Package store persists finished transcriptions in a local badger
// database.
//
// Key layout:
//
//	rec:{ts_ns:020d}:{id} → msgpack-encoded Record
//	id:{id}               → primary key bytes (reverse index)
//
// Zero-padded nanosecond timestamps make lexicographic order match
// chronological order, so listing is a reverse prefix scan. The reverse
// index gives ID lookups without scanning.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("store: record not found")

// Record is one finished transcription.
type Record struct {
	ID         string    `json:"id" msgpack:"id"`
	Engine     string    `json:"engine" msgpack:"engine"`
	Text       string    `json:"text" msgpack:"text"`
	AudioBytes int64     `json:"audio_bytes" msgpack:"audio_bytes"`
	DurationMS int64     `json:"duration_ms" msgpack:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
}

// Options configures the store.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence, for tests.
	InMemory bool
}

// Store is a badger-backed record store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the record database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a record, assigning ID and CreatedAt when unset.
func (s *Store) Put(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	key := recordKey(rec.CreatedAt.UnixNano(), rec.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(rec.ID), key)
	})
}

// Get returns the record with the given ID.
func (s *Store) Get(_ context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := resolveID(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key, err := resolveID(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// List returns records newest first. A limit of zero or less returns
// everything.
func (s *Store) List(_ context.Context, limit int) ([]*Record, error) {
	var recs []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse iteration starts just past the end of the prefix range.
		seek := append(append([]byte{}, recPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(recPrefix); it.Next() {
			if limit > 0 && len(recs) >= limit {
				break
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// resolveID maps a record ID to its primary key via the reverse index.
func resolveID(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

var recPrefix = []byte("rec:")

func recordKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("rec:%020d:%s", ts, id))
}

func idKey(id string) []byte {
	return []byte("id:" + id)
}

// badgerLogger routes badger output to slog, dropping the noisy info and
// debug levels.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	slog.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...any) {
	slog.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
