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

// Package workerpool implements a small static goroutine pool with two
// priority lanes, used to off-load CPU-bound crypto work (internal/envelope)
// off of the caller's goroutine.
package workerpool

import (
	"fmt"
	"sync"
)

// task is a unit of work submitted to the pool.
type task func()

// StaticWorkerPool runs a fixed number of priority and normal worker
// goroutines pulling from two separate channels. Priority workers take only
// priority tasks; normal workers take from either lane, with no preference
// between them when both have work.
type StaticWorkerPool struct {
	priorityTasks chan task
	normalTasks   chan task

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewStaticWorkerPool starts priorityWorkers+normalWorkers goroutines. At
// least one worker total is required.
func NewStaticWorkerPool(priorityWorkers, normalWorkers uint32) (*StaticWorkerPool, error) {
	if priorityWorkers == 0 && normalWorkers == 0 {
		return nil, fmt.Errorf("workerpool: at least one priority or normal worker is required")
	}

	p := &StaticWorkerPool{
		priorityTasks: make(chan task, 64),
		normalTasks:   make(chan task, 64),
		stop:          make(chan struct{}),
	}

	for i := uint32(0); i < priorityWorkers; i++ {
		p.wg.Add(1)
		go p.runPriorityWorker()
	}
	for i := uint32(0); i < normalWorkers; i++ {
		p.wg.Add(1)
		go p.runNormalWorker()
	}

	return p, nil
}

func (p *StaticWorkerPool) runPriorityWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.priorityTasks:
			t()
		}
	}
}

func (p *StaticWorkerPool) runNormalWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.priorityTasks:
			t()
		case t := <-p.normalTasks:
			t()
		}
	}
}

// Submit enqueues f on the normal lane, blocking while the lane is full. If
// the pool has been stopped, Submit returns at once and f never runs.
func (p *StaticWorkerPool) Submit(f func()) {
	select {
	case <-p.stop:
		return
	case p.normalTasks <- f:
	}
}

// SubmitPriority enqueues f on the priority lane.
func (p *StaticWorkerPool) SubmitPriority(f func()) {
	select {
	case <-p.stop:
		return
	case p.priorityTasks <- f:
	}
}

// Stop signals every worker goroutine to exit and waits for them to drain.
// Safe to call more than once.
func (p *StaticWorkerPool) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}
