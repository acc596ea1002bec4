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

// gc implements the state machine in spec.md §4.4: a Directory is eligible
// for destruction once only its "." self-link remains (nlink == 1); any
// other inode is eligible once nlink == 0. Either way destruction also
// requires zero live descriptor references. An ineligible candidate is
// inserted into the GC set instead, to be swept on the next Manager.Start.
func (m *Manager) gc(tran *kvstore.Transaction, ino Index) error {
	rec, err := m.Get(tran, ino)
	if err != nil {
		if cryptofs.Is(err, cryptofs.NotFound) {
			return nil
		}
		return err
	}

	nlink, err := m.nlink(tran, ino)
	if err != nil {
		return err
	}

	threshold := uint32(0)
	if rec.Type == TypeDirectory {
		threshold = 1
	}

	if nlink <= threshold && m.refCount(ino) == 0 {
		return m.destroy(tran, rec)
	}

	return tran.Put(gcPath(), packIndex(ino), []byte{})
}
