// Package memory implements the repositories on an in-process document store with optimistic
// transactions. It backs tests and local runs without a database.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const defaultMaxAttempts = 10

var errTxConflict = errors.New("memory: transaction conflict")

// Error implements repositories.RepositoryError.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %s", e.op, e.msg) }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, msg string) error { return &Error{op: op, msg: msg, notFound: true} }
func conflict(op, msg string) error { return &Error{op: op, msg: msg, conflict: true} }

type document struct {
	data    []byte
	version uint64
}

// Store holds JSON encoded documents keyed by collection and id. Each document carries a
// version that transactions validate at commit.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]document
	clock       uint64
	maxAttempts int
}

// Option customises the store.
type Option func(*Store)

// WithMaxAttempts bounds how often a conflicting transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{docs: make(map[string]document), maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type txContextKey struct{}

type txn struct {
	store  *Store
	reads  map[string]uint64
	writes map[string][]byte
	order  []string
}

func txFromContext(ctx context.Context) (*txn, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*txn)
	return tx, ok
}

// RunInTx runs fn against a snapshot-validated transaction. Nested calls join the outer
// transaction. fn is retried when a document it read changed before commit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &txn{store: s, reads: map[string]uint64{}, writes: map[string][]byte{}}
		if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
			return err
		}
		err := tx.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errTxConflict) {
			return err
		}
	}
	return conflict("memory.transaction", "too much contention")
}

// run executes fn in the ambient transaction or a fresh one.
func (s *Store) run(ctx context.Context, fn func(tx *txn) error) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		tx, _ := txFromContext(ctx)
		return fn(tx)
	})
}

func (tx *txn) get(collection, id string, out any) (bool, error) {
	key := collection + "/" + id
	if data, ok := tx.writes[key]; ok {
		return true, json.Unmarshal(data, out)
	}

	tx.store.mu.RLock()
	doc, ok := tx.store.docs[key]
	tx.store.mu.RUnlock()

	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = doc.version
	}
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(doc.data, out)
}

func (tx *txn) put(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory: encode %s/%s: %w", collection, id, err)
	}
	key := collection + "/" + id
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = data
	return nil
}

func (tx *txn) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range tx.reads {
		if s.docs[key].version != seen {
			return errTxConflict
		}
	}
	for _, key := range tx.order {
		s.clock++
		s.docs[key] = document{data: tx.writes[key], version: s.clock}
	}
	return nil
}

// scan decodes every committed document of collection. Scans are not part of the read set.
func scan[T any](s *Store, collection string) ([]T, error) {
	prefix := collection + "/"
	s.mu.RLock()
	keys := make([]string, 0)
	for key := range s.docs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	raw := make([][]byte, 0, len(keys))
	for _, key := range keys {
		raw = append(raw, s.docs[key].data)
	}
	s.mu.RUnlock()

	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("memory: decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}
