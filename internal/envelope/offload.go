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

package envelope

import "github.com/cryptofs/cryptofs/internal/workerpool"

// Pool dispatches independent Seal/Open calls across a worker pool instead
// of running them on the caller's goroutine. A nil *Pool runs everything
// in-thread - that is the default, and callers need not special-case it.
type Pool struct {
	workers *workerpool.StaticWorkerPool
}

// NewPool wraps an already-started worker pool for crypto offload. Passing a
// nil workers is valid and makes every Pool method run in-thread.
func NewPool(workers *workerpool.StaticWorkerPool) *Pool {
	return &Pool{workers: workers}
}

// SealAll seals every plaintext in plaintexts under key, in parallel when a
// worker pool is configured. The result slice preserves input order; inputs
// are independent of one another, and completion order across them is not
// guaranteed.
func (p *Pool) SealAll(key []byte, plaintexts [][]byte) ([][]byte, error) {
	out := make([][]byte, len(plaintexts))
	if p == nil || p.workers == nil {
		for i, pt := range plaintexts {
			sealed, err := Seal(key, pt)
			if err != nil {
				return nil, err
			}
			out[i] = sealed
		}
		return out, nil
	}

	fns := make([]func() error, len(plaintexts))
	for i, pt := range plaintexts {
		i, pt := i, pt
		fns[i] = func() error {
			sealed, err := Seal(key, pt)
			if err != nil {
				return err
			}
			out[i] = sealed
			return nil
		}
	}
	if err := p.workers.RunBatch(fns); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenAll opens every ciphertext in sealed under key. ok[i] is false if
// sealed[i] failed to verify; out[i] is nil in that case.
func (p *Pool) OpenAll(key []byte, sealed [][]byte) (out [][]byte, ok []bool) {
	out = make([][]byte, len(sealed))
	ok = make([]bool, len(sealed))

	open := func(i int) {
		out[i], ok[i] = Open(key, sealed[i])
	}

	if p == nil || p.workers == nil {
		for i := range sealed {
			open(i)
		}
		return out, ok
	}

	fns := make([]func() error, len(sealed))
	for i := range sealed {
		i := i
		fns[i] = func() error {
			open(i)
			return nil
		}
	}
	// Opens never fail the batch itself - a verification failure is recorded
	// in ok, not propagated as an error.
	_ = p.workers.RunBatch(fns)
	return out, ok
}
