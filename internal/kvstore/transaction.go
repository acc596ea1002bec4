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

package kvstore

import (
	"bytes"
	"sort"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/common"
	"github.com/cryptofs/cryptofs/internal/envelope"
	"go.etcd.io/bbolt"
)

type writeOp struct {
	value   []byte
	deleted bool
}

// Transaction is one read-committed unit of work against a Store. Put and Del
// only touch an in-memory write snapshot; nothing reaches bbolt until Commit
// runs the batch. Get checks that snapshot before falling back to the
// committed store visible through the underlying bbolt transaction.
type Transaction struct {
	store *Store
	btx   *bbolt.Tx

	writes map[string]map[string]writeOp

	committed  bool
	rolledBack bool

	successQueue common.Queue[func()]
	failureQueue common.Queue[func()]
}

func newTransaction(s *Store, btx *bbolt.Tx) *Transaction {
	return &Transaction{
		store:        s,
		btx:          btx,
		writes:       make(map[string]map[string]writeOp),
		successQueue: common.NewLinkedListQueue[func()](),
		failureQueue: common.NewLinkedListQueue[func()](),
	}
}

// Put seals plaintext and stages it for write under key in the bucket named
// by path. The write is invisible to other transactions until Commit.
func (t *Transaction) Put(path []string, key, plaintext []byte) error {
	sealed, err := envelope.Seal(t.store.key, plaintext)
	if err != nil {
		return cryptofs.Wrap(cryptofs.Transport, err, "seal value")
	}
	t.setOp(path, key, writeOp{value: sealed})
	return nil
}

// Del stages a delete of key in the bucket named by path.
func (t *Transaction) Del(path []string, key []byte) {
	t.setOp(path, key, writeOp{deleted: true})
}

// PutBatch seals every plaintext in plaintexts in one dispatch through the
// store's crypto pool (internal/envelope.Pool.SealAll), fanning the work out
// across worker goroutines when one is configured, then stages each result
// under the corresponding key in keys. len(keys) must equal len(plaintexts).
// This is the batched counterpart to Put, for callers writing several
// independent values at once (e.g. every block of a multi-block write).
func (t *Transaction) PutBatch(path []string, keys [][]byte, plaintexts [][]byte) error {
	if len(plaintexts) == 0 {
		return nil
	}
	sealed, err := t.store.pool.SealAll(t.store.key, plaintexts)
	if err != nil {
		return cryptofs.Wrap(cryptofs.Transport, err, "seal batch")
	}
	for i, key := range keys {
		t.setOp(path, key, writeOp{value: sealed[i]})
	}
	return nil
}

// OpenBatch opens every sealed ciphertext in sealed in one dispatch through
// the store's crypto pool (internal/envelope.Pool.OpenAll). ok[i] is false
// if sealed[i] failed to verify.
func (t *Transaction) OpenBatch(sealed [][]byte) (plaintexts [][]byte, ok []bool) {
	return t.store.pool.OpenAll(t.store.key, sealed)
}

func (t *Transaction) setOp(path []string, key []byte, op writeOp) {
	bk := bucketKey(path)
	m, ok := t.writes[bk]
	if !ok {
		m = make(map[string]writeOp)
		t.writes[bk] = m
	}
	m[string(key)] = op
}

// Get returns the plaintext stored under key in the bucket named by path,
// checking the write snapshot first. found is false if the key is absent or
// has been staged for deletion. err is non-nil only on AEAD failure.
func (t *Transaction) Get(path []string, key []byte) (plaintext []byte, found bool, err error) {
	bk := bucketKey(path)
	if m, ok := t.writes[bk]; ok {
		if op, ok := m[string(key)]; ok {
			if op.deleted {
				return nil, false, nil
			}
			return t.open(op.value)
		}
	}

	bucket := openBucketChain(t.btx, path)
	if bucket == nil {
		return nil, false, nil
	}
	sealed := bucket.Get(key)
	if sealed == nil {
		return nil, false, nil
	}
	return t.open(append([]byte(nil), sealed...))
}

func (t *Transaction) open(sealed []byte) ([]byte, bool, error) {
	plaintext, ok := envelope.Open(t.store.key, sealed)
	if !ok {
		return nil, false, cryptofs.New(cryptofs.AEADFailed, "block decryption failed")
	}
	return plaintext, true, nil
}

func inRange(key, start, end []byte) bool {
	if bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}

// Iterate calls fn for every live key in [startKey, endKey) within the bucket
// named by path, in ascending key order, merging staged writes over the
// committed store. endKey of nil means unbounded. fn's error stops iteration
// and is returned to the caller.
func (t *Transaction) Iterate(path []string, startKey, endKey []byte, fn func(key, plaintext []byte) error) error {
	return t.iterateMerged(path, startKey, endKey, func(key, sealed []byte) error {
		plaintext, ok, err := t.open(sealed)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return fn(key, plaintext)
	})
}

// IterateSealed is Iterate without opening each value - fn receives the raw
// sealed bytes. Used by callers that want to batch-open a whole range
// through the store's crypto pool (internal/envelope.Pool.OpenAll) instead
// of opening one value per key.
func (t *Transaction) IterateSealed(path []string, startKey, endKey []byte, fn func(key, sealed []byte) error) error {
	return t.iterateMerged(path, startKey, endKey, fn)
}

// iterateMerged walks [startKey, endKey) within the bucket named by path in
// ascending key order, merging staged writes over the committed store, and
// calls fn with each live key and its raw sealed value.
func (t *Transaction) iterateMerged(path []string, startKey, endKey []byte, fn func(key, sealed []byte) error) error {
	bk := bucketKey(path)
	pending := t.writes[bk]

	var pendingKeys []string
	for k := range pending {
		if inRange([]byte(k), startKey, endKey) {
			pendingKeys = append(pendingKeys, k)
		}
	}
	sort.Strings(pendingKeys)

	var cursor *bbolt.Cursor
	var cursorKey, cursorVal []byte
	if bucket := openBucketChain(t.btx, path); bucket != nil {
		cursor = bucket.Cursor()
		cursorKey, cursorVal = cursor.Seek(startKey)
	}

	pi := 0
	for {
		haveCommit := cursor != nil && cursorKey != nil && inRange(cursorKey, startKey, endKey)
		havePending := pi < len(pendingKeys)
		if !haveCommit && !havePending {
			return nil
		}

		nextFromPending := havePending && (!haveCommit || bytes.Compare([]byte(pendingKeys[pi]), cursorKey) <= 0)

		if nextFromPending {
			key := pendingKeys[pi]
			op := pending[key]
			pi++
			if haveCommit && bytes.Equal([]byte(key), cursorKey) {
				cursorKey, cursorVal = cursor.Next()
			}
			if op.deleted {
				continue
			}
			if err := fn([]byte(key), op.value); err != nil {
				return err
			}
			continue
		}

		key := append([]byte(nil), cursorKey...)
		val := append([]byte(nil), cursorVal...)
		cursorKey, cursorVal = cursor.Next()
		if err := fn(key, val); err != nil {
			return err
		}
	}
}

// Last returns the lexicographically greatest live key in the bucket named by
// path, merging staged writes over the committed store. ok is false if the
// bucket is empty.
func (t *Transaction) Last(path []string) (key, plaintext []byte, ok bool, err error) {
	bk := bucketKey(path)
	pending := t.writes[bk]

	var lastPending string
	havePending := false
	for k, op := range pending {
		if op.deleted {
			continue
		}
		if !havePending || k > lastPending {
			lastPending = k
			havePending = true
		}
	}

	var lastCommitKey, lastCommitVal []byte
	if bucket := openBucketChain(t.btx, path); bucket != nil {
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if op, shadowed := pending[string(k)]; shadowed && op.deleted {
				continue
			}
			lastCommitKey, lastCommitVal = append([]byte(nil), k...), append([]byte(nil), v...)
			break
		}
	}

	switch {
	case !havePending && lastCommitKey == nil:
		return nil, nil, false, nil
	case !havePending:
		plaintext, ok, err = t.open(lastCommitVal)
		return lastCommitKey, plaintext, ok, err
	case lastCommitKey == nil || lastPending >= string(lastCommitKey):
		op := pending[lastPending]
		plaintext, ok, err = t.open(op.value)
		return []byte(lastPending), plaintext, ok, err
	default:
		plaintext, ok, err = t.open(lastCommitVal)
		return lastCommitKey, plaintext, ok, err
	}
}

// QueueSuccess registers f to run once Commit has durably written the batch.
func (t *Transaction) QueueSuccess(f func()) {
	t.successQueue.Push(f)
}

// QueueFailure registers f to run if the transaction rolls back.
func (t *Transaction) QueueFailure(f func()) {
	t.failureQueue.Push(f)
}

// Commit writes every staged operation to bbolt as a single atomic batch and
// runs the success queue. Calling Commit on an already-committed or
// already-rolled-back transaction is an error.
func (t *Transaction) Commit() error {
	if t.committed {
		return cryptofs.New(cryptofs.TxCommitted, "transaction already committed")
	}
	if t.rolledBack {
		return cryptofs.New(cryptofs.TxRolledBack, "transaction already rolled back")
	}

	for bk, ops := range t.writes {
		if len(ops) == 0 {
			continue
		}
		path := splitBucketKey(bk)
		bucket, err := createBucketChain(t.btx, path)
		if err != nil {
			return t.abortCommit(cryptofs.Wrap(cryptofs.Transport, err, "open bucket %v", path))
		}
		for k, op := range ops {
			if op.deleted {
				if err := bucket.Delete([]byte(k)); err != nil {
					return t.abortCommit(cryptofs.Wrap(cryptofs.Transport, err, "delete key"))
				}
				continue
			}
			if err := bucket.Put([]byte(k), op.value); err != nil {
				return t.abortCommit(cryptofs.Wrap(cryptofs.Transport, err, "put key"))
			}
		}
	}

	if err := t.btx.Commit(); err != nil {
		return t.abortCommit(cryptofs.Wrap(cryptofs.Transport, err, "commit batch"))
	}

	t.committed = true
	t.runQueue(t.successQueue)
	return nil
}

func (t *Transaction) abortCommit(err error) error {
	_ = t.btx.Rollback()
	t.rolledBack = true
	t.runQueue(t.failureQueue)
	return err
}

// Rollback discards every staged operation and runs the failure queue.
// Calling Rollback on an already-committed or already-rolled-back
// transaction is an error.
func (t *Transaction) Rollback() error {
	if t.committed {
		return cryptofs.New(cryptofs.TxCommitted, "transaction already committed")
	}
	if t.rolledBack {
		return cryptofs.New(cryptofs.TxRolledBack, "transaction already rolled back")
	}
	_ = t.btx.Rollback()
	t.rolledBack = true
	t.runQueue(t.failureQueue)
	return nil
}

func (t *Transaction) runQueue(q common.Queue[func()]) {
	for !q.IsEmpty() {
		q.Pop()()
	}
}
