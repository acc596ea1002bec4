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

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/clock"
	"github.com/cryptofs/cryptofs/internal/envelope"
	"github.com/cryptofs/cryptofs/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	key, err := envelope.GenerateKey(256)
	require.NoError(t, err)

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"), key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(store, clock.NewSimulatedClock(time.Unix(1_700_000_000, 0)), 4096, 0o022, 0, 0)
	require.NoError(t, m.Start(context.Background()))
	return m
}

func TestStartOnAlreadyStartedManagerErrors(t *testing.T) {
	m := newTestManager(t)
	err := m.Start(context.Background())
	assert.True(t, cryptofs.Is(err, cryptofs.Running))
}

func TestStopOnNotRunningManagerErrors(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Stop())
	err := m.Stop()
	assert.True(t, cryptofs.Is(err, cryptofs.NotRunning))
}

func TestCreateRootEstablishesRoot(t *testing.T) {
	m := newTestManager(t)

	var root Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		ino, err := m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		root = ino
		return nil
	}))

	require.NoError(t, m.Transact(context.Background(), []Index{root}, func(ctx context.Context, tran *kvstore.Transaction) error {
		got, found, err := m.GetRoot(tran)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, root, got)

		s, err := StatGet(tran, root)
		require.NoError(t, err)
		assert.EqualValues(t, 2, s.Nlink)

		child, found, err := m.DirGetEntry(tran, root, ".")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, root, child)

		parent, found, err := m.DirGetEntry(tran, root, "..")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, root, parent)
		return nil
	}))
}

func TestCreateSecondRootFailsWithDuplicateRoot(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		return err
	}))

	err := m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		return err
	})
	assert.True(t, cryptofs.Is(err, cryptofs.DuplicateRoot))
}

func TestCreateDirectoryWithMissingParentFails(t *testing.T) {
	m := newTestManager(t)

	err := m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m.CreateDirectory(tran, Index(999), 0o755, 0, 0)
		return err
	})
	assert.True(t, cryptofs.Is(err, cryptofs.ParentMissing))
}

func TestCreateFileAndLinkIntoDirectory(t *testing.T) {
	m := newTestManager(t)

	var root, file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		root, err = m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.DirSetEntry(tran, root, "hello.txt", file)
	}))

	require.NoError(t, m.Transact(context.Background(), []Index{file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		s, err := StatGet(tran, file)
		require.NoError(t, err)
		assert.EqualValues(t, 1, s.Nlink)
		return nil
	}))
}

func TestUnlinkDestroysFileWithNoReferences(t *testing.T) {
	m := newTestManager(t)

	var root, file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		root, err = m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.DirSetEntry(tran, root, "hello.txt", file)
	}))

	require.NoError(t, m.Transact(context.Background(), []Index{root, file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		return m.DirUnsetEntry(tran, root, "hello.txt")
	}))

	err := m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m.Get(tran, file)
		return err
	})
	assert.True(t, cryptofs.Is(err, cryptofs.NotFound))
}

func TestUnlinkWithLiveDescriptorDefersToGC(t *testing.T) {
	m := newTestManager(t)

	var root, file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		root, err = m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.DirSetEntry(tran, root, "hello.txt", file)
	}))

	m.Ref(file)

	require.NoError(t, m.Transact(context.Background(), []Index{root, file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		return m.DirUnsetEntry(tran, root, "hello.txt")
	}))

	require.NoError(t, m.Transact(context.Background(), []Index{file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		rec, err := m.Get(tran, file)
		require.NoError(t, err)
		assert.True(t, rec.GC)
		return nil
	}))

	require.NoError(t, m.Transact(context.Background(), []Index{file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		return m.Unref(tran, file)
	}))

	err := m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m.Get(tran, file)
		return err
	})
	assert.True(t, cryptofs.Is(err, cryptofs.NotFound))
}

func TestStartSweepsPendingGCEntries(t *testing.T) {
	key, err := envelope.GenerateKey(256)
	require.NoError(t, err)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := kvstore.Open(dbPath, key, nil)
	require.NoError(t, err)

	clk := clock.NewSimulatedClock(time.Unix(1_700_000_000, 0))
	m := NewManager(store, clk, 4096, 0o022, 0, 0)
	require.NoError(t, m.Start(context.Background()))

	var root, file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		root, err = m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.DirSetEntry(tran, root, "hello.txt", file)
	}))

	m.Ref(file)
	require.NoError(t, m.Transact(context.Background(), []Index{root, file}, func(ctx context.Context, tran *kvstore.Transaction) error {
		return m.DirUnsetEntry(tran, root, "hello.txt")
	}))
	require.NoError(t, store.Close())

	// Simulate a process crash/restart: reopen the store and a fresh Manager
	// without ever calling Unref - the GC set entry is the only trace left.
	store2, err := kvstore.Open(dbPath, key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store2.Close() })
	m2 := NewManager(store2, clk, 4096, 0o022, 0, 0)
	require.NoError(t, m2.Start(context.Background()))

	err = m2.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		_, err := m2.Get(tran, file)
		return err
	})
	assert.True(t, cryptofs.Is(err, cryptofs.NotFound))
}

func TestDestroyDirectoryWithExtraEntriesFails(t *testing.T) {
	m := newTestManager(t)

	var root, file Index
	require.NoError(t, m.Transact(context.Background(), nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		var err error
		root, err = m.CreateDirectory(tran, NoParent, 0o755, 0, 0)
		require.NoError(t, err)
		file, err = m.CreateFile(tran, 0o644, 0, 0)
		require.NoError(t, err)
		return m.DirSetEntry(tran, root, "hello.txt", file)
	}))

	err := m.Transact(context.Background(), []Index{root}, func(ctx context.Context, tran *kvstore.Transaction) error {
		return m.Destroy(tran, root)
	})
	assert.True(t, cryptofs.Is(err, cryptofs.InvalidArgument))
}
