// Copyright 2025-2026 The rpclb Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package migration

import (
	"sync"
	"time"

	"github.com/rpclb/migration/internal"
)

// Scheduler runs delayed decision tasks. One scheduler is normally
// shared by every coordinator in a process: create it at process init,
// hand it to coordinators via [WithScheduler], and Close it at shutdown.
// Coordinators constructed without one share a lazily-started
// process-wide default.
//
// Tasks scheduled on different coordinators never interfere; each
// coordinator's one-shot guard makes a superseded task a no-op.
type Scheduler struct {
	clock internal.Clock

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler returns a running scheduler.
func NewScheduler() *Scheduler {
	return newScheduler(internal.NewRealClock())
}

func newScheduler(clock internal.Clock) *Scheduler {
	return &Scheduler{
		clock: clock,
		stop:  make(chan struct{}),
	}
}

// Schedule runs task once after the given delay. It reports false if
// the scheduler is already closed, in which case the task will never
// run.
func (s *Scheduler) Schedule(delay time.Duration, task func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	timer := s.clock.NewTimer(delay)
	go func() {
		defer s.wg.Done()
		select {
		case <-timer.Chan():
			task()
		case <-s.stop:
			if !timer.Stop() {
				<-timer.Chan()
			}
		}
	}()
	return true
}

// Close stops the scheduler and waits for in-flight tasks to drain.
// Pending tasks that have not fired are dropped. Close is idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

//nolint:gochecknoglobals
var defaultScheduler = sync.OnceValue(NewScheduler)
