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
	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// Destroy immediately tears down ino, bypassing the nlink/ref eligibility
// check in gc. Callers that want the eligibility check should go through
// Unlink/Unref instead; Destroy is for callers that already know the inode
// has no remaining links or references (e.g. a debug CLI).
func (m *Manager) Destroy(tran *kvstore.Transaction, ino Index) error {
	rec, err := m.Get(tran, ino)
	if err != nil {
		return err
	}
	return m.destroy(tran, rec)
}

// destroy dispatches on rec.Type and removes every record associated with
// the inode, finally freeing its Index for reuse once the enclosing
// transaction commits.
func (m *Manager) destroy(tran *kvstore.Transaction, rec *Record) error {
	switch rec.Type {
	case TypeFile:
		m.fileClearData(tran, rec.Index)
		statDeleteAll(tran, rec.Index)

	case TypeDirectory:
		if err := m.destroyDirectory(tran, rec.Index); err != nil {
			return err
		}

	case TypeSymlink:
		tran.Del(linkPath(), packIndex(rec.Index))
		statDeleteAll(tran, rec.Index)

	case TypeCharDev:
		statDeleteAll(tran, rec.Index)

	default:
		return cryptofs.New(cryptofs.TypeMismatch, "unknown inode type for %s", rec.Index)
	}

	tran.Del(inodesPath(), packIndex(rec.Index))
	tran.Del(gcPath(), packIndex(rec.Index))
	tran.QueueSuccess(func() { m.Deallocate(rec.Index) })
	return nil
}

func (m *Manager) destroyDirectory(tran *kvstore.Transaction, ino Index) error {
	var extra bool
	if err := tran.Iterate(dirPath(ino), nil, nil, func(key, _ []byte) error {
		name := string(key)
		if name != dotEntry && name != dotDotEntry {
			extra = true
		}
		return nil
	}); err != nil {
		return err
	}
	if extra {
		return cryptofs.New(cryptofs.InvalidArgument, "directory %s is not empty", ino)
	}

	parentRaw, found, err := tran.Get(dirPath(ino), []byte(dotDotEntry))
	if err != nil {
		return err
	}
	if !found {
		return cryptofs.New(cryptofs.ParentMissing, "directory %s missing .. entry", ino)
	}
	parent := unpackIndex(parentRaw)

	if parent != ino {
		if err := m.adjustNlink(tran, parent, -1); err != nil {
			return err
		}
	}

	tran.Del(dirPath(ino), []byte(dotEntry))
	tran.Del(dirPath(ino), []byte(dotDotEntry))
	statDeleteAll(tran, ino)

	root, found, err := m.GetRoot(tran)
	if err != nil {
		return err
	}
	if found && root == ino {
		m.clearRoot(tran)
	}

	return nil
}
