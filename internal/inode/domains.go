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
	"strconv"

	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// managerDomain roots every sub-level this package owns in the store, so a
// single bbolt database can one day host more than one manager's domains
// side by side without collision.
const managerDomain = "manager"

func packIndex(ino Index) []byte {
	return kvstore.PackUint64(uint64(ino))
}

func unpackIndex(b []byte) Index {
	return Index(kvstore.UnpackUint64(b))
}

func inoString(ino Index) string {
	return strconv.FormatUint(uint64(ino), 10)
}

// inodesPath is the type-tag domain: Index -> Type.
func inodesPath() []string {
	return []string{managerDomain, "inodes"}
}

// statPath is the per-inode stat property domain: prop name -> JSON value.
func statPath(ino Index) []string {
	return []string{managerDomain, "stat", inoString(ino)}
}

// dataPath is the per-file block domain: block index -> plaintext block.
func dataPath(ino Index) []string {
	return []string{managerDomain, "data", inoString(ino)}
}

// dirPath is the per-directory entry domain: name -> child Index.
func dirPath(ino Index) []string {
	return []string{managerDomain, "dir", inoString(ino)}
}

// linkPath is the symlink target domain: Index -> target string.
func linkPath() []string {
	return []string{managerDomain, "link"}
}

// gcPath is the presence-only set of inodes awaiting deferred destruction.
func gcPath() []string {
	return []string{managerDomain, "gc"}
}

// rootKey is the well-known key under the manager domain holding the
// filesystem root's Index.
var rootKey = []byte("root")

func managerPath() []string {
	return []string{managerDomain}
}
