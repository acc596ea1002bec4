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

// Package blockmath maps byte positions and lengths onto block indices. Every
// function here is pure; the index/offset arithmetic is allocation-free,
// while Range and SegmentSlice return new slices and Segments returns a
// lazily evaluated sequence. None of them touch the store or perform I/O.
package blockmath

// IndexStart returns the index of the block containing position, for blocks
// of size blkSize.
func IndexStart(blkSize, position int64) int64 {
	return position / blkSize
}

// Offset returns the byte offset of position within its block.
func Offset(blkSize, position int64) int64 {
	return position % blkSize
}

// Length returns the number of blocks spanned by a region that starts at
// blockOffset within its first block and is byteLength bytes long. A
// byteLength of zero spans zero blocks regardless of blockOffset.
func Length(blkSize, blockOffset, byteLength int64) int64 {
	if byteLength == 0 {
		return 0
	}
	return ceilDiv(blockOffset+byteLength, blkSize)
}

// IndexEnd returns the last block index spanned by a region of the given
// length starting at block start. A length of zero has no end index; callers
// must not call IndexEnd when length is zero.
func IndexEnd(start, length int64) int64 {
	return start + length - 1
}

// PositionStart returns the byte position at which block index begins.
func PositionStart(blkSize, index int64) int64 {
	return index * blkSize
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// Range generates the half-open sequence [a, b) stepping by step. step must
// be positive; a negative or zero step yields an empty sequence.
func Range(a, b, step int64) []int64 {
	if step <= 0 || a >= b {
		return nil
	}
	out := make([]int64, 0, (b-a+step-1)/step)
	for i := a; i < b; i += step {
		out = append(out, i)
	}
	return out
}

// Segments lazily splits buf into blkSize chunks, the last one possibly
// shorter. The returned function yields the next segment on each call and
// reports false once buf is exhausted.
func Segments(blkSize int, buf []byte) func() ([]byte, bool) {
	pos := 0
	return func() ([]byte, bool) {
		if pos >= len(buf) {
			return nil, false
		}
		end := pos + blkSize
		if end > len(buf) {
			end = len(buf)
		}
		segment := buf[pos:end]
		pos = end
		return segment, true
	}
}

// SegmentSlice is the eager counterpart of Segments, convenient for callers
// that want every chunk up front (e.g. fileSetBlocks in internal/inode).
func SegmentSlice(blkSize int, buf []byte) [][]byte {
	next := Segments(blkSize, buf)
	var out [][]byte
	for {
		segment, ok := next()
		if !ok {
			return out
		}
		out = append(out, segment)
	}
}
