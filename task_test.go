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
	"sync"
	"testing"
	"time"

	"github.com/rpclb/migration/internal/clocktest"
	"github.com/rpclb/migration/invoker"
	"github.com/rpclb/migration/invokertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agreeComparator(agree bool) Comparator {
	return ComparatorFunc(func(_, _ invoker.Invoker, _ any) bool {
		return agree
	})
}

func extensionsWith(comparators ...Comparator) *Extensions {
	exts := NewExtensions()
	for _, comparator := range comparators {
		exts.RegisterComparator(comparator)
	}
	return exts
}

// channelReporter delivers outcome tags to a channel so tests can wait
// for the asynchronous decision to land.
func channelReporter(outcomes chan<- string) Reporter {
	return ReporterFunc(func(_, _, _, outcome string) {
		outcomes <- outcome
	})
}

func awaitOutcome(t *testing.T, outcomes <-chan string) string {
	t.Helper()
	select {
	case outcome := <-outcomes:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a status report")
		return ""
	}
}

func fireDecision(t *testing.T, clock clocktest.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultDelay)
}

func TestDecideUnanimousConsent(t *testing.T) {
	t.Parallel()

	outcomes := make(chan string, 1)
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord, clock := startNonForcedCycle(t, iface, app, []Option{
		WithExtensions(extensionsWith(agreeComparator(true), agreeComparator(true))),
		WithReporter(channelReporter(outcomes)),
	})

	fireDecision(t, clock)
	assert.Equal(t, OutcomeAppConfirmed, awaitOutcome(t, outcomes))
	assert.True(t, iface.IsDestroyed())
	assert.False(t, app.IsDestroyed())

	// The surviving source was promoted before teardown.
	_, err := coord.Invoke(context.Background(), &invoker.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, app.Calls())
}

func TestDecideDissentReverts(t *testing.T) {
	t.Parallel()

	outcomes := make(chan string, 1)
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord, clock := startNonForcedCycle(t, iface, app, []Option{
		WithExtensions(extensionsWith(agreeComparator(true), agreeComparator(false))),
		WithReporter(channelReporter(outcomes)),
	})

	fireDecision(t, clock)
	assert.Equal(t, OutcomeAppReverted, awaitOutcome(t, outcomes))
	assert.True(t, app.IsDestroyed())
	assert.False(t, iface.IsDestroyed())

	_, err := coord.Invoke(context.Background(), &invoker.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, iface.Calls())
}

func TestDecideEmptyComparatorSetMigrates(t *testing.T) {
	t.Parallel()

	reporter := invokertest.NewRecordingReporter()
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	_, clock := startNonForcedCycle(t, iface, app, []Option{
		WithReporter(reporter),
	})

	fireDecision(t, clock)
	require.Eventually(t, iface.IsDestroyed, 5*time.Second, time.Millisecond)
	assert.False(t, app.IsDestroyed())
	assert.Empty(t, reporter.Outcomes())
}

func TestDecidePanickingComparatorIsDissent(t *testing.T) {
	t.Parallel()

	outcomes := make(chan string, 1)
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	panicking := ComparatorFunc(func(_, _ invoker.Invoker, _ any) bool {
		panic("comparator exploded")
	})
	_, clock := startNonForcedCycle(t, iface, app, []Option{
		WithExtensions(extensionsWith(agreeComparator(true), panicking)),
		WithReporter(channelReporter(outcomes)),
	})

	fireDecision(t, clock)
	assert.Equal(t, OutcomeAppReverted, awaitOutcome(t, outcomes))
	assert.True(t, app.IsDestroyed())
	assert.False(t, iface.IsDestroyed())
}

func TestDecideExactlyOnceUnderRaces(t *testing.T) {
	t.Parallel()

	reporter := invokertest.NewRecordingReporter()
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord, _ := startNonForcedCycle(t, iface, app, []Option{
		WithExtensions(extensionsWith(agreeComparator(true))),
		WithReporter(reporter),
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.decide()
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{OutcomeAppConfirmed}, reporter.Outcomes())
	assert.True(t, iface.IsDestroyed())
	assert.False(t, app.IsDestroyed())
}

func TestDecideStaleTaskIsNoOp(t *testing.T) {
	t.Parallel()

	reporter := invokertest.NewRecordingReporter()
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord, clock := startNonForcedCycle(t, iface, app, []Option{
		WithExtensions(extensionsWith(agreeComparator(true))),
		WithReporter(reporter),
	})

	// A second cycle begins while the first cycle's task is pending.
	// Both tasks fire; only one may finalize.
	coord.MigrateToServiceDiscoveryInvoker(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(DefaultDelay)

	require.Eventually(t, func() bool {
		return len(reporter.Outcomes()) > 0
	}, 5*time.Second, time.Millisecond)
	// Give the losing task a chance to misbehave before asserting.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{OutcomeAppConfirmed}, reporter.Outcomes())
}

func TestClosedSchedulerDecidesImmediately(t *testing.T) {
	t.Parallel()

	outcomes := make(chan string, 1)
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	scheduler := NewScheduler()
	scheduler.Close()
	coord := New(
		invokertest.NewFakeProvider(),
		invokertest.NewFakeRegistry(),
		testConsumer(),
		WithScheduler(scheduler),
		WithInterfaceInvoker(iface),
		WithApplicationInvoker(app),
		WithExtensions(extensionsWith(agreeComparator(true))),
		WithReporter(channelReporter(outcomes)),
	)

	// The delayed task cannot be scheduled, so the cycle must finalize
	// right away instead of dangling forever.
	coord.MigrateToServiceDiscoveryInvoker(false)

	assert.Equal(t, OutcomeAppConfirmed, awaitOutcome(t, outcomes))
	assert.True(t, iface.IsDestroyed())
	assert.False(t, app.IsDestroyed())

	_, err := coord.Invoke(context.Background(), &invoker.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, app.Calls())
}

func TestForcedMigrationSkipsScheduling(t *testing.T) {
	t.Parallel()

	outcomes := make(chan string, 1)
	clock := clocktest.NewFakeClock()
	scheduler := newScheduler(clock)
	t.Cleanup(scheduler.Close)
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord := New(
		invokertest.NewFakeProvider(),
		invokertest.NewFakeRegistry(),
		testConsumer(),
		WithScheduler(scheduler),
		WithReporter(channelReporter(outcomes)),
		WithInterfaceInvoker(iface),
		WithApplicationInvoker(app),
	)

	coord.MigrateToServiceDiscoveryInvoker(true)

	// No delayed task may be pending in forced mode.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.Error(t, clock.BlockUntilContext(ctx, 1))
	require.Nil(t, iface.FakeDir().Listener())

	// Finalization is synchronous on the first notification.
	require.True(t, app.FakeDir().Notify())
	assert.Equal(t, OutcomeApplication, awaitOutcome(t, outcomes))
	assert.True(t, iface.IsDestroyed())

	// Later notifications are no-ops.
	app.FakeDir().Notify()
	select {
	case outcome := <-outcomes:
		t.Fatalf("unexpected second report %q", outcome)
	default:
	}

	_, err := coord.Invoke(context.Background(), &invoker.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, app.Calls())
}

func TestGateRejectionFallsBack(t *testing.T) {
	t.Parallel()

	for _, forced := range []bool{false, true} {
		outcomes := make(chan string, 1)
		iface := newLiveInvoker("interface", 1)
		app := newLiveInvoker("application", 1)
		exts := NewExtensions()
		exts.RegisterChecker(CheckerFunc(func(consumer invoker.Target) bool {
			assert.Equal(t, testConsumer(), consumer)
			return false
		}))
		provider := invokertest.NewFakeProvider()
		coord := New(
			provider,
			invokertest.NewFakeRegistry(),
			testConsumer(),
			WithExtensions(exts),
			WithReporter(channelReporter(outcomes)),
			WithInterfaceInvoker(iface),
			WithApplicationInvoker(app),
		)

		coord.MigrateToServiceDiscoveryInvoker(forced)

		// The modern source is never activated.
		assert.Zero(t, provider.ApplicationBuilds())
		require.Nil(t, app.FakeDir().Listener())

		require.True(t, iface.FakeDir().Notify())
		assert.Equal(t, OutcomeInterface, awaitOutcome(t, outcomes))
		assert.True(t, app.IsDestroyed())
		assert.False(t, iface.IsDestroyed())
	}
}

func TestGatePanicIsRejection(t *testing.T) {
	t.Parallel()

	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	exts := NewExtensions()
	exts.RegisterChecker(CheckerFunc(func(invoker.Target) bool {
		panic("checker exploded")
	}))
	provider := invokertest.NewFakeProvider()
	coord := New(
		provider,
		invokertest.NewFakeRegistry(),
		testConsumer(),
		WithExtensions(exts),
		WithInterfaceInvoker(iface),
		WithApplicationInvoker(app),
	)

	coord.MigrateToServiceDiscoveryInvoker(true)
	assert.Zero(t, provider.ApplicationBuilds())
	require.NotNil(t, iface.FakeDir().Listener())
	require.Nil(t, app.FakeDir().Listener())
}

func TestOnlyFirstCheckerConsulted(t *testing.T) {
	t.Parallel()

	exts := NewExtensions()
	first := 0
	second := 0
	exts.RegisterChecker(CheckerFunc(func(invoker.Target) bool {
		first++
		return true
	}))
	exts.RegisterChecker(CheckerFunc(func(invoker.Target) bool {
		second++
		return false
	}))
	iface := newLiveInvoker("interface", 1)
	app := newLiveInvoker("application", 1)
	coord := New(
		invokertest.NewFakeProvider(),
		invokertest.NewFakeRegistry(),
		testConsumer(),
		WithExtensions(exts),
		WithInterfaceInvoker(iface),
		WithApplicationInvoker(app),
	)

	coord.MigrateToServiceDiscoveryInvoker(true)
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
}
