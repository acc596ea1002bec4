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

// Package inode is the typed, transactional, reference-counted graph of
// files, directories, symlinks, and character devices backing the file
// system - spec.md's C4. Every mutation runs inside a kvstore.Transaction
// holding the relevant inode's advisory lock.
package inode

import "fmt"

// Index is an opaque identifier allocated by Manager.Allocate. Zero is never
// issued to a real inode; it is used internally as the "no parent" sentinel.
type Index uint64

func (i Index) String() string {
	return fmt.Sprintf("#%d", uint64(i))
}

// Type tags the kind of filesystem object an inode represents.
type Type byte

const (
	// TypeFile is a regular file with block-addressed data.
	TypeFile Type = iota + 1
	// TypeDirectory is a name -> Index entry table, always containing "."
	// and "..".
	TypeDirectory
	// TypeSymlink stores a verbatim target string.
	TypeSymlink
	// TypeCharDev stores a (major, minor) device number pair.
	TypeCharDev
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "File"
	case TypeDirectory:
		return "Directory"
	case TypeSymlink:
		return "Symlink"
	case TypeCharDev:
		return "CharacterDev"
	default:
		return "Unknown"
	}
}

// Record is the authoritative existence check for an inode: its type and
// whether it is currently sitting in the GC set awaiting deferred
// destruction.
type Record struct {
	Index Index
	Type  Type
	GC    bool
}

// dotEntry and dotDotEntry are never valid as a caller-supplied directory entry name;
// "." and ".." are bootstrapped internally by CreateDirectory only.
const (
	dotEntry    = "."
	dotDotEntry = ".."
)
