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

import "github.com/cryptofs/cryptofs/internal/kvstore"

// Link increments ino's nlink by one.
func (m *Manager) Link(tran *kvstore.Transaction, ino Index) error {
	return m.link(tran, ino)
}

// link increments ino's nlink by one.
func (m *Manager) link(tran *kvstore.Transaction, ino Index) error {
	return m.adjustNlink(tran, ino, 1)
}

// Unlink decrements ino's nlink by one, then runs the GC check that may
// destroy or schedule ino for deferred destruction.
func (m *Manager) Unlink(tran *kvstore.Transaction, ino Index) error {
	return m.unlink(tran, ino)
}

// unlink decrements ino's nlink by one, then runs the GC check that may
// destroy or schedule ino for deferred destruction.
func (m *Manager) unlink(tran *kvstore.Transaction, ino Index) error {
	if err := m.adjustNlink(tran, ino, -1); err != nil {
		return err
	}
	return m.gc(tran, ino)
}

func (m *Manager) adjustNlink(tran *kvstore.Transaction, ino Index, delta int32) error {
	s := &Stat{}
	if _, err := StatGetProp(tran, ino, PropNlink, s); err != nil {
		return err
	}
	next := int32(s.Nlink) + delta
	if next < 0 {
		next = 0
	}
	s.Nlink = uint32(next)
	return StatSetProp(tran, ino, PropNlink, s)
}

func (m *Manager) nlink(tran *kvstore.Transaction, ino Index) (uint32, error) {
	s := &Stat{}
	if _, err := StatGetProp(tran, ino, PropNlink, s); err != nil {
		return 0, err
	}
	return s.Nlink, nil
}
