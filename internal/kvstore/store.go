// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kvstore wraps an embedded ordered key/value engine (bbolt) with
// read-committed transactions, per-inode advisory locks, and a batched
// atomic commit. Every value that passes through a Transaction is sealed and
// opened through the crypto envelope transparently; callers hand this
// package plaintext and get plaintext back.
package kvstore

import (
	"context"
	"sync"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/envelope"
	"go.etcd.io/bbolt"
)

// LockID identifies an advisory lock slot, ordinarily an inode index.
type LockID = uint64

// Store owns the underlying database handle, the envelope key used to seal
// and open every value, and the map of per-inode advisory locks. One Store
// is shared process-wide by a manager instance.
type Store struct {
	db   *bbolt.DB
	key  []byte
	pool *envelope.Pool

	// mu is the "DB lock" of spec.md §5: it guards the locks map itself, not
	// the database - bbolt already serializes writers one at a time.
	mu    sync.Mutex
	locks map[LockID]*sync.Mutex
}

// Open opens (creating if absent) a bbolt database at path. key seals and
// opens every value written through transactions on the returned Store. pool
// may be nil, in which case crypto runs on the caller's goroutine.
func Open(path string, key []byte, pool *envelope.Pool) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, cryptofs.Wrap(cryptofs.Transport, err, "open database at %s", path)
	}
	return &Store{
		db:    db,
		key:   key,
		pool:  pool,
		locks: make(map[LockID]*sync.Mutex),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return cryptofs.Wrap(cryptofs.Transport, err, "close database")
	}
	return nil
}

func (s *Store) lockFor(id LockID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

// acquireLocks locks every id in the order given, returning the mutexes in
// that same order so the caller can release them in reverse.
func (s *Store) acquireLocks(ids []LockID) []*sync.Mutex {
	locks := make([]*sync.Mutex, len(ids))
	for i, id := range ids {
		m := s.lockFor(id)
		m.Lock()
		locks[i] = m
	}
	return locks
}

func releaseLocks(locks []*sync.Mutex) {
	for i := len(locks) - 1; i >= 0; i-- {
		locks[i].Unlock()
	}
}

type txContextKey struct{}

// TransactionFromContext returns the in-flight Transaction carried by ctx, if
// any. Operations that accept a context use this to detect they are running
// nested inside an outer Transact call.
func TransactionFromContext(ctx context.Context) (*Transaction, bool) {
	tran, ok := ctx.Value(txContextKey{}).(*Transaction)
	return tran, ok
}

// Transact acquires the advisory locks named by ids in the order given, begins
// a write transaction, and runs f. f's error triggers rollback; a nil return
// commits. Calling Transact again with a context already carrying a
// Transaction is a no-op around locking and commit - f runs against the
// existing Transaction directly, matching spec.md §4.3's "withTransaction...
// no-ops if already inside".
func (s *Store) Transact(ctx context.Context, ids []LockID, f func(ctx context.Context, tran *Transaction) error) error {
	if tran, ok := TransactionFromContext(ctx); ok {
		return f(ctx, tran)
	}

	locks := s.acquireLocks(ids)
	defer releaseLocks(locks)

	btx, err := s.db.Begin(true)
	if err != nil {
		return cryptofs.Wrap(cryptofs.Transport, err, "begin transaction")
	}

	tran := newTransaction(s, btx)
	ctx = context.WithValue(ctx, txContextKey{}, tran)

	if err := f(ctx, tran); err != nil {
		if !tran.committed && !tran.rolledBack {
			_ = tran.Rollback()
		}
		return err
	}

	if !tran.committed && !tran.rolledBack {
		return tran.Commit()
	}
	return nil
}
