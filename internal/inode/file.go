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
	"github.com/cryptofs/cryptofs/internal/blockmath"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// fileClearData deletes every block record for ino; used by truncate-to-zero
// and by Destroy.
func (m *Manager) fileClearData(tran *kvstore.Transaction, ino Index) {
	_ = tran.Iterate(dataPath(ino), nil, nil, func(key, _ []byte) error {
		tran.Del(dataPath(ino), key)
		return nil
	})
}

// FileClearData is the exported form of fileClearData, for callers
// implementing truncate semantics outside this package.
func (m *Manager) FileClearData(tran *kvstore.Transaction, ino Index) {
	m.fileClearData(tran, ino)
}

// FileGetBlocks streams the plaintext of every block index in [startIdx,
// endIdx) for ino, in ascending order. endIdx < 0 means unbounded. A gap in
// the store (a hole) yields a zero-filled block of m.blkSize bytes so
// positional correctness is preserved across missing indices. The sealed
// values in range are opened in one batch dispatch through the store's
// crypto pool rather than one call per block.
func (m *Manager) FileGetBlocks(tran *kvstore.Transaction, ino Index, startIdx, endIdx int64, fn func(idx int64, block []byte) error) error {
	var endKey []byte
	if endIdx >= 0 {
		endKey = kvstore.PackUint64(uint64(endIdx))
	}

	var keys [][]byte
	var sealed [][]byte
	if err := tran.IterateSealed(dataPath(ino), kvstore.PackUint64(uint64(startIdx)), endKey, func(key, value []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		sealed = append(sealed, value)
		return nil
	}); err != nil {
		return err
	}

	plaintexts, oks := tran.OpenBatch(sealed)

	next := startIdx
	for i, key := range keys {
		idx := int64(kvstore.UnpackUint64(key))
		for next < idx {
			if err := fn(next, m.zeroBlock()); err != nil {
				return err
			}
			next++
		}
		if !oks[i] {
			return cryptofs.New(cryptofs.AEADFailed, "block decryption failed")
		}
		if err := fn(idx, plaintexts[i]); err != nil {
			return err
		}
		next = idx + 1
	}

	for next < endIdx {
		if err := fn(next, m.zeroBlock()); err != nil {
			return err
		}
		next++
	}
	return nil
}

func (m *Manager) zeroBlock() []byte {
	return make([]byte, m.blkSize)
}

// FileGetLastBlock returns the highest-indexed block for ino. found is false
// if the file has no blocks at all.
func (m *Manager) FileGetLastBlock(tran *kvstore.Transaction, ino Index) (idx int64, plaintext []byte, found bool, err error) {
	key, plaintext, found, err := tran.Last(dataPath(ino))
	if err != nil || !found {
		return 0, nil, false, err
	}
	return int64(kvstore.UnpackUint64(key)), plaintext, true, nil
}

// FileWriteBlock performs a read-modify-write of a single block: if no block
// exists at idx, data is written verbatim. Otherwise data is merged into the
// existing block at offset, extending it with zeros first if offset runs
// past the existing length. It returns the number of bytes copied from data.
func (m *Manager) FileWriteBlock(tran *kvstore.Transaction, ino Index, data []byte, idx, offset int64) (int, error) {
	existing, found, err := tran.Get(dataPath(ino), kvstore.PackUint64(uint64(idx)))
	if err != nil {
		return 0, err
	}

	if !found {
		buf := make([]byte, offset+int64(len(data)))
		copy(buf[offset:], data)
		if err := tran.Put(dataPath(ino), kvstore.PackUint64(uint64(idx)), buf); err != nil {
			return 0, err
		}
		return len(data), nil
	}

	var merged []byte
	switch {
	case offset >= int64(len(existing)):
		merged = make([]byte, offset+int64(len(data)))
		copy(merged, existing)
		copy(merged[offset:], data)
	case offset+int64(len(data)) > int64(len(existing)):
		merged = make([]byte, offset+int64(len(data)))
		copy(merged, existing)
		copy(merged[offset:], data)
	default:
		merged = append([]byte(nil), existing...)
		copy(merged[offset:offset+int64(len(data))], data)
	}

	if err := tran.Put(dataPath(ino), kvstore.PackUint64(uint64(idx)), merged); err != nil {
		return 0, err
	}
	return len(data), nil
}

// FileSetBlocks segments data into m.blkSize chunks and writes each in one
// batch starting at startIdx. Both of its callers (initial file population
// and the tail of an append that spills past the last block) only ever pass
// indices with no existing block, so - unlike FileWriteBlock - there is
// nothing to merge; every segment seals and stages independently, which is
// exactly the batch of independent seal calls the crypto pool exists to fan
// out (internal/kvstore.Transaction.PutBatch).
func (m *Manager) FileSetBlocks(tran *kvstore.Transaction, ino Index, data []byte, startIdx int64) error {
	segments := blockmath.SegmentSlice(int(m.blkSize), data)
	keys := make([][]byte, len(segments))
	for i := range segments {
		keys[i] = kvstore.PackUint64(uint64(startIdx + int64(i)))
	}
	return tran.PutBatch(dataPath(ino), keys, segments)
}
