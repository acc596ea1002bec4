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

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatch_AllSucceed(t *testing.T) {
	pool, err := NewStaticWorkerPool(1, 4)
	require.NoError(t, err)
	defer pool.Stop()

	var n int32
	fns := make([]func() error, 10)
	for i := range fns {
		fns[i] = func() error {
			atomic.AddInt32(&n, 1)
			return nil
		}
	}

	assert.NoError(t, pool.RunBatch(fns))
	assert.EqualValues(t, 10, n)
}

func TestRunBatch_FirstErrorWins(t *testing.T) {
	pool, err := NewStaticWorkerPool(1, 4)
	require.NoError(t, err)
	defer pool.Stop()

	boom := errors.New("boom")
	fns := []func() error{
		func() error { return nil },
		func() error { return boom },
		func() error { return nil },
	}

	assert.ErrorIs(t, pool.RunBatch(fns), boom)
}
