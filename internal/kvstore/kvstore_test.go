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
	"context"
	"path/filepath"
	"testing"

	"github.com/cryptofs/cryptofs/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key, err := envelope.GenerateKey(256)
	require.NoError(t, err)

	store, err := Open(filepath.Join(t.TempDir(), "test.db"), key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetVisibleWithinSameTransaction(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	err := store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		require.NoError(t, tran.Put(path, []byte("mode"), []byte("0644")))
		got, found, err := tran.Get(path, []byte("mode"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("0644"), got)
		return nil
	})
	require.NoError(t, err)
}

func TestPutPersistsAfterCommit(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		return tran.Put(path, []byte("mode"), []byte("0644"))
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		got, found, err := tran.Get(path, []byte("mode"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("0644"), got)
		return nil
	}))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	boom := assert.AnError
	err := store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		require.NoError(t, tran.Put(path, []byte("mode"), []byte("0644")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		_, found, err := tran.Get(path, []byte("mode"))
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestDeleteRemovesCommittedValue(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		return tran.Put(path, []byte("mode"), []byte("0644"))
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		tran.Del(path, []byte("mode"))
		_, found, err := tran.Get(path, []byte("mode"))
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		_, found, err := tran.Get(path, []byte("mode"))
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestQueueSuccessFiresOnlyAfterCommit(t *testing.T) {
	store := newTestStore(t)
	fired := false

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		tran.QueueSuccess(func() { fired = true })
		assert.False(t, fired)
		return nil
	}))

	assert.True(t, fired)
}

func TestQueueFailureFiresOnRollback(t *testing.T) {
	store := newTestStore(t)
	fired := false
	boom := assert.AnError

	err := store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		tran.QueueFailure(func() { fired = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, fired)
}

func TestNestedTransactReusesOuterTransaction(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	require.NoError(t, store.Transact(context.Background(), []LockID{1}, func(ctx context.Context, outer *Transaction) error {
		require.NoError(t, outer.Put(path, []byte("a"), []byte("1")))

		return store.Transact(ctx, []LockID{1}, func(ctx context.Context, inner *Transaction) error {
			assert.Same(t, outer, inner)
			got, found, err := inner.Get(path, []byte("a"))
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("1"), got)
			return nil
		})
	}))
}

func TestCommitTwiceErrors(t *testing.T) {
	store := newTestStore(t)

	var savedTran *Transaction
	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		savedTran = tran
		return nil
	}))

	err := savedTran.Commit()
	assert.Error(t, err)
}

func TestRollbackAfterCommitErrors(t *testing.T) {
	store := newTestStore(t)

	var savedTran *Transaction
	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		savedTran = tran
		return nil
	}))

	err := savedTran.Rollback()
	assert.Error(t, err)
}

func TestIterateMergesPendingAndCommitted(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "data"}

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		require.NoError(t, tran.Put(path, PackUint64(0), []byte("block0")))
		require.NoError(t, tran.Put(path, PackUint64(2), []byte("block2")))
		return nil
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		require.NoError(t, tran.Put(path, PackUint64(1), []byte("block1")))
		tran.Del(path, PackUint64(2))

		var gotKeys []uint64
		var gotVals []string
		err := tran.Iterate(path, PackUint64(0), nil, func(key, plaintext []byte) error {
			gotKeys = append(gotKeys, UnpackUint64(key))
			gotVals = append(gotVals, string(plaintext))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 1}, gotKeys)
		assert.Equal(t, []string{"block0", "block1"}, gotVals)
		return nil
	}))
}

func TestLastReturnsHighestLiveKey(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "data"}

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		require.NoError(t, tran.Put(path, PackUint64(0), []byte("block0")))
		require.NoError(t, tran.Put(path, PackUint64(5), []byte("block5")))
		return nil
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		key, plaintext, ok, err := tran.Last(path)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(5), UnpackUint64(key))
		assert.Equal(t, []byte("block5"), plaintext)
		return nil
	}))

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		tran.Del(path, PackUint64(5))
		key, plaintext, ok, err := tran.Last(path)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(0), UnpackUint64(key))
		assert.Equal(t, []byte("block0"), plaintext)
		return nil
	}))
}

func TestLastEmptyBucket(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		_, _, ok, err := tran.Last([]string{"manager", "data"})
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestLocksSerializeConcurrentTransactionsOnSameID(t *testing.T) {
	store := newTestStore(t)
	path := []string{"manager", "stat"}

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		return tran.Put(path, []byte("counter"), []byte("0"))
	}))

	done := make(chan struct{})
	go func() {
		_ = store.Transact(context.Background(), []LockID{7}, func(ctx context.Context, tran *Transaction) error {
			return tran.Put(path, []byte("counter"), []byte("1"))
		})
		close(done)
	}()

	require.NoError(t, store.Transact(context.Background(), []LockID{7}, func(ctx context.Context, tran *Transaction) error {
		return tran.Put(path, []byte("counter"), []byte("2"))
	}))
	<-done

	require.NoError(t, store.Transact(context.Background(), nil, func(ctx context.Context, tran *Transaction) error {
		got, found, err := tran.Get(path, []byte("counter"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Contains(t, []string{"1", "2"}, string(got))
		return nil
	}))
}
