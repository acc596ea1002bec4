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

package workerpool

import "golang.org/x/sync/errgroup"

// RunBatch submits each of fns to the pool's normal lane and blocks until
// every one has run, returning the first error encountered (if any). Used to
// fan a multi-block seal/open call out across the pool and collect the
// result as a single error, mirroring errgroup.Group's own contract.
func (p *StaticWorkerPool) RunBatch(fns []func() error) error {
	var g errgroup.Group
	for _, fn := range fns {
		fn := fn
		done := make(chan struct{})
		g.Go(func() error {
			var err error
			p.Submit(func() {
				defer close(done)
				err = fn()
			})
			<-done
			return err
		})
	}
	return g.Wait()
}
