/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package task serializes a session's outbound USB transfers.  Jobs run one
// at a time, in submission order, on a dedicated goroutine, so bulk writes
// and control transfers never interleave on the bus.
package task

import (
	"fmt"
	"sync"

	"github.com/tessel/tesselmgr/tmxact/tmxutil"
)

type job struct {
	fn   func() error
	done chan error
}

func (j job) finish(err error) {
	j.done <- err
	close(j.done)
}

type Queue struct {
	name string

	// Protects the fields below.
	mtx     sync.Mutex
	jobs    chan job
	stopCh  chan struct{}
	stopErr error
	running bool

	wg sync.WaitGroup
}

func NewQueue(name string) *Queue {
	return &Queue{
		name: name,
	}
}

// Error for jobs that cannot run: the stop cause once the queue has been
// stopped, a SesnClosedError if it was never started.
func (q *Queue) refusal() error {
	if q.stopErr != nil {
		return q.stopErr
	}
	return tmxutil.NewSesnClosedError(fmt.Sprintf(
		"%s: transfer queue not started", q.name))
}

// Submits fn.  The job's result is delivered on the returned channel, which
// receives exactly one value.
func (q *Queue) Enqueue(fn func() error) <-chan error {
	j := job{
		fn:   fn,
		done: make(chan error, 1),
	}

	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.running {
		j.finish(q.refusal())
	} else {
		q.jobs <- j
	}

	return j.done
}

// Submits fn and waits for it to complete.
func (q *Queue) Run(fn func() error) error {
	return <-q.Enqueue(fn)
}

// Starts the worker.  depth is the number of jobs that may wait behind the
// running one before Enqueue blocks.  A stopped queue cannot be restarted.
func (q *Queue) Start(depth int) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.running || q.stopErr != nil {
		return fmt.Errorf("transfer queue \"%s\" started twice", q.name)
	}

	q.jobs = make(chan job, depth)
	q.stopCh = make(chan struct{})
	q.running = true

	q.wg.Add(1)
	go q.work(q.jobs, q.stopCh)

	return nil
}

func (q *Queue) work(jobs <-chan job, stopCh <-chan struct{}) {
	defer q.wg.Done()

	for {
		select {
		case <-stopCh:
			return

		case j := <-jobs:
			// A job picked up after Stop must not touch the device.
			select {
			case <-stopCh:
				j.finish(q.stopErr)
			default:
				j.finish(j.fn())
			}
		}
	}
}

// Stops the worker.  Jobs still waiting, and any submitted later, fail with
// cause.  A job already running is allowed to finish; Stop blocks until it
// does, so it must not be called from inside a job.
func (q *Queue) Stop(cause error) error {
	if cause == nil {
		cause = tmxutil.NewSesnClosedError("transfer queue stopped")
	}

	q.mtx.Lock()

	if !q.running {
		q.mtx.Unlock()
		return fmt.Errorf("transfer queue \"%s\" not running", q.name)
	}
	q.running = false
	q.stopErr = cause
	close(q.stopCh)

drain:
	for {
		select {
		case j := <-q.jobs:
			j.finish(cause)
		default:
			break drain
		}
	}

	q.mtx.Unlock()

	q.wg.Wait()
	return nil
}

func (q *Queue) Running() bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.running
}
