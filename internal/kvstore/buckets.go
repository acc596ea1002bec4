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

package kvstore

import (
	"encoding/binary"
	"strings"

	"go.etcd.io/bbolt"
)

// bucketSeparator joins path segments into a single string map key for the
// in-memory write snapshot. It never appears in a domain name because every
// domain name in internal/inode is a Go identifier or decimal inode index.
const bucketSeparator = "\x00"

func bucketKey(path []string) string {
	return strings.Join(path, bucketSeparator)
}

func splitBucketKey(bk string) []string {
	return strings.Split(bk, bucketSeparator)
}

// openBucketChain walks path through nested buckets, returning nil if any
// level is absent. Safe on both read-only and read-write transactions.
func openBucketChain(tx *bbolt.Tx, path []string) *bbolt.Bucket {
	if len(path) == 0 {
		return nil
	}
	bucket := tx.Bucket([]byte(path[0]))
	for _, name := range path[1:] {
		if bucket == nil {
			return nil
		}
		bucket = bucket.Bucket([]byte(name))
	}
	return bucket
}

// createBucketChain walks path through nested buckets, creating any that are
// missing. Only valid on a writable transaction.
func createBucketChain(tx *bbolt.Tx, path []string) (*bbolt.Bucket, error) {
	bucket, err := tx.CreateBucketIfNotExists([]byte(path[0]))
	if err != nil {
		return nil, err
	}
	for _, name := range path[1:] {
		bucket, err = bucket.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return nil, err
		}
	}
	return bucket, nil
}

// PackUint64 encodes v as a fixed-width big-endian key so that bbolt's
// byte-lexicographic cursor order equals numeric order.
func PackUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// UnpackUint64 is the inverse of PackUint64.
func UnpackUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
