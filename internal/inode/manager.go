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
	"sync"
	"time"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/clock"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// Manager is the typed inode graph described by spec.md §4.4, built on one
// kvstore.Store. One Manager instance owns the process-wide inode counter,
// the descriptor-reference-count map, and (through the Store) the per-inode
// advisory locks.
type Manager struct {
	store   *kvstore.Store
	clock   clock.Clock
	blkSize int64
	umask   uint32
	rootUid uint32
	rootGid uint32

	mu       sync.Mutex
	started  bool
	counter  Index
	freelist []Index
	refs     map[Index]int
}

// NewManager constructs a Manager. blkSize is the plaintext block size in
// bytes; umask is applied to every mode at creation time; rootUid/rootGid are
// the defaults used when a caller does not supply uid/gid.
func NewManager(store *kvstore.Store, clk clock.Clock, blkSize int64, umask, rootUid, rootGid uint32) *Manager {
	return &Manager{
		store:   store,
		clock:   clk,
		blkSize: blkSize,
		umask:   umask,
		rootUid: rootUid,
		rootGid: rootGid,
		refs:    make(map[Index]int),
	}
}

// Transact delegates to the underlying Store, translating Index lock ids.
// It requires the manager to have been Start-ed; this is the single gate
// every public operation passes through, since none of the typed
// Create*/stat/dir/file accessors can run without a *kvstore.Transaction.
func (m *Manager) Transact(ctx context.Context, inos []Index, f func(ctx context.Context, tran *kvstore.Transaction) error) error {
	if err := m.requireStarted(); err != nil {
		return err
	}
	return m.transact(ctx, inos, f)
}

// transact is Transact without the started check, used internally by Start
// itself (which runs transactions before it is allowed to claim it is
// started).
func (m *Manager) transact(ctx context.Context, inos []Index, f func(ctx context.Context, tran *kvstore.Transaction) error) error {
	ids := make([]kvstore.LockID, len(inos))
	for i, ino := range inos {
		ids[i] = kvstore.LockID(ino)
	}
	return m.store.Transact(ctx, ids, f)
}

// Start seeds the in-memory inode counter from the committed inodes domain
// and destroys every inode left in the GC set - spec.md §4.4's crash-recovery
// guarantee that a GC-scheduled inode is destroyed on the next start even if
// the process crashed immediately after scheduling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return cryptofs.New(cryptofs.Running, "manager already started")
	}
	m.mu.Unlock()

	var maxIndex Index
	var pending []Index
	if err := m.transact(ctx, nil, func(ctx context.Context, tran *kvstore.Transaction) error {
		if err := tran.Iterate(inodesPath(), nil, nil, func(key, _ []byte) error {
			if idx := unpackIndex(key); idx > maxIndex {
				maxIndex = idx
			}
			return nil
		}); err != nil {
			return err
		}
		return tran.Iterate(gcPath(), nil, nil, func(key, _ []byte) error {
			pending = append(pending, unpackIndex(key))
			return nil
		})
	}); err != nil {
		return err
	}

	m.mu.Lock()
	m.counter = maxIndex
	m.started = true
	m.mu.Unlock()

	if len(pending) > 0 {
		if err := m.Transact(ctx, pending, func(ctx context.Context, tran *kvstore.Transaction) error {
			for _, ino := range pending {
				if err := m.gc(tran, ino); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

// Stop marks the manager as no longer accepting operations. It does not
// close the underlying Store; callers own that lifecycle separately.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return cryptofs.New(cryptofs.NotRunning, "manager not running")
	}
	m.started = false
	return nil
}

func (m *Manager) requireStarted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return cryptofs.New(cryptofs.NotRunning, "manager not running")
	}
	return nil
}

// Allocate returns a fresh Index, drawing from the freelist before advancing
// the monotonic counter. Zero is never issued.
func (m *Manager) Allocate() Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freelist); n > 0 {
		idx := m.freelist[n-1]
		m.freelist = m.freelist[:n-1]
		return idx
	}
	m.counter++
	return m.counter
}

// Deallocate returns ino to the freelist for reuse by a future Allocate.
func (m *Manager) Deallocate(ino Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freelist = append(m.freelist, ino)
}

// Ref increments ino's in-memory descriptor reference count, keeping it
// alive even if its link count later drops to the destroy threshold.
func (m *Manager) Ref(ino Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ino]++
}

// Unref decrements ino's descriptor reference count and, if it has reached
// zero, runs the GC check that may destroy ino immediately.
func (m *Manager) Unref(tran *kvstore.Transaction, ino Index) error {
	m.mu.Lock()
	m.refs[ino]--
	if m.refs[ino] <= 0 {
		delete(m.refs, ino)
	}
	m.mu.Unlock()
	return m.gc(tran, ino)
}

func (m *Manager) refCount(ino Index) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[ino]
}

// Now returns the manager's injected clock's current time, letting layers
// above (fd.Open's O_TRUNC path, e.g.) stamp stat fields without reaching
// into the clock package themselves.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// Get is the authoritative existence check for ino.
func (m *Manager) Get(tran *kvstore.Transaction, ino Index) (*Record, error) {
	typeBytes, found, err := tran.Get(inodesPath(), packIndex(ino))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cryptofs.New(cryptofs.NotFound, "inode %s", ino)
	}

	_, inGC, err := tran.Get(gcPath(), packIndex(ino))
	if err != nil {
		return nil, err
	}

	return &Record{Index: ino, Type: Type(typeBytes[0]), GC: inGC}, nil
}

// GetRoot returns the filesystem root's Index, if one has been established.
func (m *Manager) GetRoot(tran *kvstore.Transaction) (Index, bool, error) {
	raw, found, err := tran.Get(managerPath(), rootKey)
	if err != nil || !found {
		return 0, false, err
	}
	return unpackIndex(raw), true, nil
}

func (m *Manager) setRoot(tran *kvstore.Transaction, ino Index) error {
	return tran.Put(managerPath(), rootKey, packIndex(ino))
}

func (m *Manager) clearRoot(tran *kvstore.Transaction) {
	tran.Del(managerPath(), rootKey)
}

func (m *Manager) newStat(ino Index, typ Type, mode, uid, gid uint32, nlink uint32) *Stat {
	now := m.clock.Now()
	adjustedMode := mode &^ m.umask
	return &Stat{
		Ino:       ino,
		Mode:      adjustedMode,
		Nlink:     nlink,
		Uid:       uid,
		Gid:       gid,
		Atime:     now,
		Mtime:     now,
		Ctime:     now,
		Birthtime: now,
		Blksize:   int32(m.blkSize),
	}
}

func (m *Manager) touch(tran *kvstore.Transaction, ino Index, mtime bool) error {
	s := &Stat{}
	now := m.clock.Now()
	s.Ctime = now
	if err := StatSetProp(tran, ino, PropCtime, s); err != nil {
		return err
	}
	if mtime {
		s.Mtime = now
		if err := StatSetProp(tran, ino, PropMtime, s); err != nil {
			return err
		}
	}
	return nil
}
