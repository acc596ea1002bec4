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

package inode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryptofs/cryptofs/clock"
	"github.com/cryptofs/cryptofs/internal/envelope"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFileManager mirrors newTestManager but with a small block size (5
// bytes), matching spec.md §8's "Test Buffer for File Descriptor" walkthrough.
func newTestFileManager(t *testing.T) *Manager {
	t.Helper()
	key, err := envelope.GenerateKey(256)
	require.NoError(t, err)

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"), key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(store, clock.NewSimulatedClock(time.Unix(1_700_000_000, 0)), 5, 0o022, 0, 0)
	require.NoError(t, m.Start(context.Background()))
	return m
}

func TestFileWriteBlockWritesVerbatimWhenAbsent(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		n, err := m.FileWriteBlock(tran, file, []byte("abc"), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, block, found, err := m.FileGetLastBlock(tran, file)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("abc"), block)
		return nil
	}))
}

func TestFileWriteBlockExtendsPastExistingLength(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		_, err = m.FileWriteBlock(tran, file, []byte("ab"), 0, 0)
		require.NoError(t, err)
		// offset (3) sits past the existing length (2): extend with zeros
		// before placing data.
		_, err = m.FileWriteBlock(tran, file, []byte("de"), 0, 3)
		return err
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, block, found, err := m.FileGetLastBlock(tran, file)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte{'a', 'b', 0, 'd', 'e'}, block)
		return nil
	}))
}

func TestFileWriteBlockOverlapsTail(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		_, err = m.FileWriteBlock(tran, file, []byte("abc"), 0, 0)
		require.NoError(t, err)
		// offset (2) + len (3) = 5 runs past existing length (3): grows in place.
		_, err = m.FileWriteBlock(tran, file, []byte("XYZ"), 0, 2)
		return err
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, block, found, err := m.FileGetLastBlock(tran, file)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("abXYZ"), block)
		return nil
	}))
}

func TestFileWriteBlockOverwritesInPlace(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		_, err = m.FileWriteBlock(tran, file, []byte("abcde"), 0, 0)
		require.NoError(t, err)
		// offset (1) + len (2) = 3 is within existing length (5): in-place swap.
		_, err = m.FileWriteBlock(tran, file, []byte("XY"), 0, 1)
		return err
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, block, found, err := m.FileGetLastBlock(tran, file)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("aXYde"), block)
		return nil
	}))
}

func TestFileGetBlocksZeroFillsHoles(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		if _, err := m.FileWriteBlock(tran, file, []byte("aaaaa"), 0, 0); err != nil {
			return err
		}
		_, err = m.FileWriteBlock(tran, file, []byte("ccccc"), 2, 0)
		return err
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var got [][]byte
		err := m.FileGetBlocks(tran, file, 0, 3, func(idx int64, block []byte) error {
			got = append(got, append([]byte(nil), block...))
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []byte("aaaaa"), got[0])
		assert.Equal(t, []byte{0, 0, 0, 0, 0}, got[1])
		assert.Equal(t, []byte("ccccc"), got[2])
		return nil
	}))
}

func TestFileGetBlocksUnboundedEnd(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		if _, err := m.FileWriteBlock(tran, file, []byte("aaaaa"), 0, 0); err != nil {
			return err
		}
		_, err = m.FileWriteBlock(tran, file, []byte("bbbbb"), 1, 0)
		return err
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var indices []int64
		err := m.FileGetBlocks(tran, file, 0, -1, func(idx int64, block []byte) error {
			indices = append(indices, idx)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1}, indices)
		return nil
	}))
}

func TestFileSetBlocksSegmentsAcrossMultipleBlocks(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		// blkSize is 5: this spans three blocks (5 + 5 + 2).
		return m.FileSetBlocks(tran, file, []byte("abcdefghijkl"), 0)
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var got []byte
		err := m.FileGetBlocks(tran, file, 0, -1, func(idx int64, block []byte) error {
			got = append(got, block...)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("abcdefghijkl"), got)
		return nil
	}))
}

func TestFileClearDataRemovesAllBlocks(t *testing.T) {
	m := newTestFileManager(t)

	var file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.FileSetBlocks(tran, file, []byte("abcdefghijkl"), 0)
	}))

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		m.FileClearData(tran, file)
		_, _, found, err := m.FileGetLastBlock(tran, file)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}
