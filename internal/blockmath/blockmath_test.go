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

package blockmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexStart(t *testing.T) {
	cases := []struct {
		blkSize, position, want int64
	}{
		{5, 0, 0},
		{5, 4, 0},
		{5, 5, 1},
		{5, 9, 1},
		{5, 10, 2},
		{4096, 8191, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IndexStart(c.blkSize, c.position))
	}
}

func TestOffset(t *testing.T) {
	cases := []struct {
		blkSize, position, want int64
	}{
		{5, 0, 0},
		{5, 4, 4},
		{5, 5, 0},
		{5, 7, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Offset(c.blkSize, c.position))
	}
}

func TestLength(t *testing.T) {
	cases := []struct {
		blkSize, blockOffset, byteLength, want int64
	}{
		{5, 0, 0, 0},
		{5, 0, 5, 1},
		{5, 0, 6, 2},
		{5, 4, 1, 1},
		{5, 4, 2, 2},
		{4096, 0, 8192, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Length(c.blkSize, c.blockOffset, c.byteLength))
	}
}

func TestIndexEnd(t *testing.T) {
	assert.Equal(t, int64(0), IndexEnd(0, 1))
	assert.Equal(t, int64(3), IndexEnd(2, 2))
}

func TestPositionStart(t *testing.T) {
	assert.Equal(t, int64(0), PositionStart(5, 0))
	assert.Equal(t, int64(10), PositionStart(5, 2))
}

func TestRange(t *testing.T) {
	assert.Equal(t, []int64{0, 1, 2, 3}, Range(0, 4, 1))
	assert.Equal(t, []int64{2, 4}, Range(2, 6, 2))
	assert.Nil(t, Range(4, 4, 1))
	assert.Nil(t, Range(5, 2, 1))
	assert.Nil(t, Range(0, 4, 0))
	assert.Nil(t, Range(0, 4, -1))
}

func TestSegments(t *testing.T) {
	buf := []byte("0123456789ab")
	next := Segments(5, buf)

	seg, ok := next()
	assert.True(t, ok)
	assert.Equal(t, []byte("01234"), seg)

	seg, ok = next()
	assert.True(t, ok)
	assert.Equal(t, []byte("56789"), seg)

	seg, ok = next()
	assert.True(t, ok)
	assert.Equal(t, []byte("ab"), seg)

	_, ok = next()
	assert.False(t, ok)
}

func TestSegmentsEmptyBuffer(t *testing.T) {
	next := Segments(5, nil)
	_, ok := next()
	assert.False(t, ok)
}

func TestSegmentSlice(t *testing.T) {
	buf := []byte("0123456789ab")
	segments := SegmentSlice(5, buf)
	assert.Equal(t, [][]byte{[]byte("01234"), []byte("56789"), []byte("ab")}, segments)

	assert.Nil(t, SegmentSlice(5, nil))
}

func TestBlockBoundaryWriteDoesNotTouchAdjacentBlock(t *testing.T) {
	// Writing exactly blkSize bytes starting at a block boundary spans
	// exactly one block and must not spill into the next.
	start := IndexStart(5, 10)
	length := Length(5, Offset(5, 10), 5)
	end := IndexEnd(start, length)

	assert.Equal(t, int64(2), start)
	assert.Equal(t, int64(2), end)
}
