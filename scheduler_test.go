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
	"context"
	"testing"
	"time"

	"github.com/rpclb/migration/internal/clocktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresAfterDelay(t *testing.T) {
	t.Parallel()

	clock := clocktest.NewFakeClock()
	scheduler := newScheduler(clock)
	t.Cleanup(scheduler.Close)

	fired := make(chan struct{})
	require.True(t, scheduler.Schedule(time.Minute, func() {
		close(fired)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	select {
	case <-fired:
		t.Fatal("task fired before the delay elapsed")
	default:
	}

	clock.Advance(time.Minute)
	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("task did not fire after the delay elapsed")
	}
}

func TestSchedulerCloseDropsPendingTasks(t *testing.T) {
	t.Parallel()

	clock := clocktest.NewFakeClock()
	scheduler := newScheduler(clock)

	fired := make(chan struct{}, 1)
	require.True(t, scheduler.Schedule(time.Minute, func() {
		fired <- struct{}{}
	}))

	// Close waits for the scheduling goroutine to exit; the pending
	// task must not run.
	scheduler.Close()
	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("task fired after Close")
	case <-time.After(50 * time.Millisecond):
	}

	// Idempotent, and scheduling on a closed scheduler is refused.
	scheduler.Close()
	assert.False(t, scheduler.Schedule(time.Minute, func() {}))
}
