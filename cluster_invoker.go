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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpclb/migration/invoker"
	"github.com/rpclb/migration/rule"
	"golang.org/x/sync/errgroup"
)

var errNoInvokerAvailable = errors.New("no invoker available for dispatch")

// ClusterInvoker coordinates one consumer-service binding's migration
// between the interface-level and application-level address sources. It
// is itself an [invoker.Invoker]-shaped dispatch surface: calls go to
// the selected invoker once a migration decision (or the first dispatch)
// has chosen one, and otherwise follow the step-based fallback policy.
//
// All methods are safe for concurrent use. Dispatch takes no lock: it
// reads the selected-invoker reference once per call. Migration-cycle
// management serializes on an internal mutex and may block briefly on
// re-subscription I/O.
type ClusterInvoker struct {
	logger    *slog.Logger
	provider  invoker.Provider
	registry  invoker.Registry
	consumer  invoker.Target
	exts      *Extensions
	reporter  Reporter
	scheduler *Scheduler
	delay     time.Duration
	lookup    func(key string) string
	binding   Binding

	// mu serializes migration-cycle management: refresh, listener
	// arming, re-subscription, destroy. Listener callbacks and dispatch
	// never take it.
	mu        sync.Mutex
	subscribe invoker.Target // +checklocks:mu

	interfaceInv   atomic.Pointer[invokerRef]
	applicationInv atomic.Pointer[invokerRef]
	current        atomic.Pointer[invokerRef]
	step           atomic.Int32
	rule           atomic.Pointer[ruleRef]
	migrated       atomic.Bool
	changed        atomic.Bool
	applied        atomic.Bool
	destroyed      atomic.Bool
}

// invokerRef boxes an invoker so it can live in an atomic.Pointer.
type invokerRef struct {
	inv invoker.Invoker
}

type ruleRef struct {
	value any
}

// New creates a coordinator for the given consumer target. The provider
// builds fresh per-strategy invokers on refresh; the registry is used
// during re-subscription.
func New(provider invoker.Provider, registry invoker.Registry, consumer invoker.Target, option ...Option) *ClusterInvoker {
	var opts options
	for _, opt := range option {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	c := &ClusterInvoker{
		logger:    opts.logger,
		provider:  provider,
		registry:  registry,
		consumer:  consumer,
		subscribe: consumer,
		exts:      opts.extensions,
		reporter:  opts.reporter,
		scheduler: opts.scheduler,
		delay:     opts.delay,
		lookup:    opts.lookup,
		binding:   opts.binding,
	}
	c.step.Store(int32(opts.step))
	if opts.interfaceInv != nil {
		c.interfaceInv.Store(&invokerRef{inv: opts.interfaceInv})
	}
	if opts.applicationInv != nil {
		c.applicationInv.Store(&invokerRef{inv: opts.applicationInv})
	}
	if c.binding != nil {
		c.binding.Attach(BindingKey, c)
	}
	return c
}

// Invoke dispatches a call. If a selected invoker exists it is used
// directly; otherwise the step-based fallback policy picks a source,
// which is then cached as the selected invoker for subsequent calls.
// Errors from the delegate are propagated verbatim.
func (c *ClusterInvoker) Invoke(ctx context.Context, req *invoker.Request) (*invoker.Response, error) {
	if cur := c.current.Load(); cur != nil {
		return cur.inv.Invoke(ctx, req)
	}

	var chosen invoker.Invoker
	switch c.MigrationStep() {
	case StepApplicationFirst:
		if iface := c.interfaceInvoker(); invokerUsable(iface) {
			chosen = iface
		} else {
			chosen = c.applicationInvoker()
		}
	case StepForceApplication:
		chosen = c.applicationInvoker()
	default:
		chosen = c.interfaceInvoker()
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s", errNoInvokerAvailable, c.consumer.ServiceKey())
	}
	c.current.CompareAndSwap(nil, &invokerRef{inv: chosen})
	return chosen.Invoke(ctx, req)
}

// IsAvailable reports whether a call dispatched now could be served.
func (c *ClusterInvoker) IsAvailable() bool {
	if cur := c.current.Load(); cur != nil {
		return cur.inv.IsAvailable()
	}
	iface, app := c.interfaceInvoker(), c.applicationInvoker()
	return (iface != nil && iface.IsAvailable()) || (app != nil && app.IsAvailable())
}

// IsDestroyed reports whether the coordinator holds no live source.
func (c *ClusterInvoker) IsDestroyed() bool {
	if cur := c.current.Load(); cur != nil {
		return cur.inv.IsDestroyed()
	}
	iface, app := c.interfaceInvoker(), c.applicationInvoker()
	return (iface == nil || iface.IsDestroyed()) && (app == nil || app.IsDestroyed())
}

// Destroy tears down both sources and detaches consumer metadata. It is
// idempotent and tolerates partially-initialized state.
func (c *ClusterInvoker) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var group errgroup.Group
	if iface := c.interfaceInvoker(); iface != nil {
		group.Go(func() error {
			return iface.Destroy()
		})
	}
	if app := c.applicationInvoker(); app != nil {
		group.Go(func() error {
			return app.Destroy()
		})
	}
	err := group.Wait()
	if err != nil {
		c.logger.Warn("error destroying source invokers", "service", c.consumer.ServiceKey(), "error", err)
	}
	if c.binding != nil {
		c.binding.Detach(BindingKey)
	}
	return err
}

// FallbackToInterfaceInvoker reverts the consumer to the legacy
// interface-level source. The application-level source is destroyed on
// the first address notification from the refreshed interface source,
// exactly once per cycle.
func (c *ClusterInvoker) FallbackToInterfaceInvoker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.migrated.Store(false)
	c.refreshInterfaceInvoker()
	c.setListener(c.interfaceInvoker(), func() {
		if c.migrated.CompareAndSwap(false, true) {
			c.destroyApplicationInvoker()
			c.report(OutcomeInterface)
		}
	})
}

// MigrateToServiceDiscoveryInvoker starts a migration cycle toward the
// application-level source. With forceMigrate false, both sources
// refresh, listeners arm provisional selection, and the decision is
// deferred to a delayed task consulting the registered comparators.
// With forceMigrate true, only the application-level source refreshes
// and finalization happens synchronously on its first notification.
//
// If the pre-migration gate rejects the consumer, this is equivalent to
// FallbackToInterfaceInvoker.
func (c *ClusterInvoker) MigrateToServiceDiscoveryInvoker(forceMigrate bool) {
	if !c.checkMigratingCondition() {
		c.FallbackToInterfaceInvoker()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.migrated.Store(false)
	if forceMigrate {
		c.refreshApplicationInvoker()
		c.setListener(c.applicationInvoker(), func() {
			if c.migrated.CompareAndSwap(false, true) {
				c.destroyInterfaceInvoker()
				c.report(OutcomeApplication)
			}
		})
		return
	}

	c.refreshApplicationInvoker()
	c.refreshInterfaceInvoker()
	// A listener may already have finalized the cycle synchronously
	// during refresh; scheduling would only produce a stale no-op task.
	if !c.migrated.Load() {
		scheduled := c.scheduler.Schedule(c.migrationDelay(), c.decide)
		c.setListener(c.interfaceInvoker(), c.setAvailableInvoker)
		c.setListener(c.applicationInvoker(), c.setAvailableInvoker)
		if !scheduled {
			c.logger.Warn("migration scheduler closed, deciding immediately",
				"service", c.consumer.ServiceKey())
			c.decide()
		}
	}
}

// RefreshApplicationOnMapping re-subscribes the application-level
// source after a service-to-application mapping change, or starts a
// migration cycle if no application-level source exists yet.
func (c *ClusterInvoker) RefreshApplicationOnMapping(forceMigrate bool) {
	if app := c.applicationInvoker(); app != nil && !app.IsDestroyed() {
		dir := app.Directory()
		if err := dir.Subscribe(dir.RegisteredConsumerTarget()); err != nil {
			c.logger.Warn("re-subscribe after mapping change failed",
				"service", c.consumer.ServiceKey(), "error", err)
		}
		return
	}
	c.MigrateToServiceDiscoveryInvoker(forceMigrate)
}

// ReRefer updates the stored subscription parameters and atomically
// re-subscribes every live source to the new target. Directory change
// listeners stay armed throughout, so no address notification is
// dropped; only the subscription target changes.
func (c *ClusterInvoker) ReRefer(newTarget invoker.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribe = c.subscribe.WithParam("refer", newTarget.Params.Encode())
	for _, inv := range []invoker.Invoker{c.interfaceInvoker(), c.applicationInvoker()} {
		if inv == nil || inv.IsDestroyed() {
			continue
		}
		if err := c.resubscribe(inv, newTarget); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClusterInvoker) resubscribe(inv invoker.Invoker, newTarget invoker.Target) error {
	dir := inv.Directory()
	oldTarget := dir.RegisteredConsumerTarget()
	if err := c.registry.Unregister(oldTarget); err != nil {
		return fmt.Errorf("unregister %s: %w", oldTarget, err)
	}
	if err := dir.Unsubscribe(oldTarget); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", oldTarget, err)
	}
	if err := c.registry.Register(newTarget); err != nil {
		return fmt.Errorf("register %s: %w", newTarget, err)
	}
	dir.SetRegisteredConsumerTarget(newTarget)
	if err := dir.RebuildRouterChain(newTarget); err != nil {
		return fmt.Errorf("rebuild router chain %s: %w", newTarget, err)
	}
	if err := dir.Subscribe(newTarget); err != nil {
		return fmt.Errorf("subscribe %s: %w", newTarget, err)
	}
	return nil
}

// Apply handles a newly pushed rule document: it records the rule,
// resolves the effective step for this consumer, and triggers the
// matching migration action when the step changed (or on first
// application).
func (c *ClusterInvoker) Apply(r *rule.Rule) {
	step := StepInterfaceFirst
	if r != nil {
		if name := r.StepFor(c.consumer.ServiceKey()); name != "" {
			parsed, err := ParseStep(name)
			if err != nil {
				c.logger.Warn("invalid step in migration rule, using INTERFACE_FIRST",
					"service", c.consumer.ServiceKey(), "error", err)
			} else {
				step = parsed
			}
		}
	}
	var value any
	if r != nil {
		value = r
	}
	c.SetMigrationRule(value)
	if c.applied.Swap(true) && c.MigrationStep() == step {
		c.logger.Debug("migration step unchanged, skipping", "step", step)
		return
	}
	c.SetMigrationStep(step)
	switch step {
	case StepForceApplication:
		c.MigrateToServiceDiscoveryInvoker(true)
	case StepApplicationFirst:
		c.MigrateToServiceDiscoveryInvoker(false)
	default:
		c.FallbackToInterfaceInvoker()
	}
}

// MigrationStep returns the current migration step.
func (c *ClusterInvoker) MigrationStep() Step {
	return Step(c.step.Load())
}

// SetMigrationStep replaces the current migration step.
func (c *ClusterInvoker) SetMigrationStep(step Step) {
	c.step.Store(int32(step))
}

// MigrationRule returns the last rule value pushed, or nil.
func (c *ClusterInvoker) MigrationRule() any {
	if ref := c.rule.Load(); ref != nil {
		return ref.value
	}
	return nil
}

// SetMigrationRule replaces the current rule snapshot wholesale. The
// coordinator does not interpret it; comparators receive it as-is.
func (c *ClusterInvoker) SetMigrationRule(value any) {
	c.rule.Store(&ruleRef{value: value})
}

// InvokersChanged reports whether any address-change listener has fired
// at least once in the current migration cycle.
func (c *ClusterInvoker) InvokersChanged() bool {
	return c.changed.Load()
}

// setAvailableInvoker sets the provisional selected invoker before the
// migration decision lands. The interface-level source wins ties while
// it is live and holds addresses, trading a slower switch to the modern
// source for never routing into an empty address set. First caller
// wins; losing writers are no-ops.
func (c *ClusterInvoker) setAvailableInvoker() {
	c.changed.Store(true)
	if c.current.Load() != nil {
		return
	}
	iface, app := c.interfaceInvoker(), c.applicationInvoker()
	chosen := iface
	switch {
	case iface != nil && !iface.IsDestroyed() && iface.HasAddresses():
		chosen = iface
	case app != nil && !app.IsDestroyed() && app.HasAddresses():
		chosen = app
	}
	if chosen == nil {
		// Dispatch falls through to the step-based policy until a
		// source has addresses.
		return
	}
	c.current.CompareAndSwap(nil, &invokerRef{inv: chosen})
}

func (c *ClusterInvoker) checkMigratingCondition() (ok bool) {
	checker, found := c.exts.Checker()
	if !found {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("pre-migration checker panic, treating as rejection",
				"service", c.consumer.ServiceKey(), "panic", r)
			ok = false
		}
	}()
	return checker.CheckCondition(c.consumer)
}

// migrationDelay resolves the decision delay: the DelayKey
// configuration value when set and valid, then the rule document's
// delay, then the configured default.
func (c *ClusterInvoker) migrationDelay() time.Duration {
	if raw := c.lookup(DelayKey); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			c.logger.Warn("invalid migration delay value, using default",
				"value", raw, "default", c.delay)
		} else {
			return time.Duration(ms) * time.Millisecond
		}
	}
	if r, isRule := c.MigrationRule().(*rule.Rule); isRule && r != nil && r.Delay > 0 {
		return time.Duration(r.Delay) * time.Second
	}
	return c.delay
}

func (c *ClusterInvoker) refreshInterfaceInvoker() {
	c.clearListener(c.interfaceInvoker())
	if !needsRefresh(c.interfaceInvoker()) {
		return
	}
	c.logger.Debug("re-subscribing interface addresses", "service", c.consumer.ServiceKey())
	inv, err := c.provider.InterfaceInvoker(c.subscribe)
	if err != nil {
		c.logger.Warn("building interface invoker failed",
			"service", c.consumer.ServiceKey(), "error", err)
		return
	}
	c.interfaceInv.Store(&invokerRef{inv: inv})
}

func (c *ClusterInvoker) refreshApplicationInvoker() {
	c.clearListener(c.applicationInvoker())
	if !needsRefresh(c.applicationInvoker()) {
		return
	}
	c.logger.Debug("re-subscribing instance addresses", "service", c.consumer.ServiceKey())
	inv, err := c.provider.ApplicationInvoker(c.subscribe)
	if err != nil {
		c.logger.Warn("building application invoker failed",
			"service", c.consumer.ServiceKey(), "error", err)
		return
	}
	c.applicationInv.Store(&invokerRef{inv: inv})
}

// destroyInterfaceInvoker finalizes migration to the application-level
// source: it promotes the surviving source to selected first, so
// dispatch never goes dark, then tears the interface-level source down.
func (c *ClusterInvoker) destroyInterfaceInvoker() {
	if app := c.applicationInvoker(); app != nil && !app.IsDestroyed() {
		c.current.Store(&invokerRef{inv: app})
	}
	ref := c.interfaceInv.Swap(nil)
	if ref == nil || ref.inv.IsDestroyed() {
		return
	}
	c.logger.Info("destroying interface address invokers, will not listen for address changes until re-subscribed",
		"service", c.consumer.ServiceKey())
	ref.inv.Directory().SetChangeListener(nil)
	if err := ref.inv.Destroy(); err != nil {
		c.logger.Warn("error destroying interface invoker",
			"service", c.consumer.ServiceKey(), "error", err)
	}
}

// destroyApplicationInvoker reverts to the interface-level source; same
// promotion-before-teardown ordering as destroyInterfaceInvoker.
func (c *ClusterInvoker) destroyApplicationInvoker() {
	if iface := c.interfaceInvoker(); iface != nil && !iface.IsDestroyed() {
		c.current.Store(&invokerRef{inv: iface})
	}
	ref := c.applicationInv.Swap(nil)
	if ref == nil || ref.inv.IsDestroyed() {
		return
	}
	c.logger.Info("destroying instance address invokers, will not listen for address changes until re-subscribed",
		"service", c.consumer.ServiceKey())
	ref.inv.Directory().SetChangeListener(nil)
	if err := ref.inv.Destroy(); err != nil {
		c.logger.Warn("error destroying application invoker",
			"service", c.consumer.ServiceKey(), "error", err)
	}
}

func (c *ClusterInvoker) report(outcome string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("status reporter panic", "service", c.consumer.ServiceKey(), "panic", r)
		}
	}()
	c.reporter.Report(c.consumer.Service, c.consumer.Version, c.consumer.Group, outcome)
}

func (c *ClusterInvoker) setListener(inv invoker.Invoker, listener func()) {
	if inv == nil {
		return
	}
	inv.Directory().SetChangeListener(listener)
}

func (c *ClusterInvoker) clearListener(inv invoker.Invoker) {
	if inv == nil {
		return
	}
	inv.Directory().SetChangeListener(nil)
}

func (c *ClusterInvoker) interfaceInvoker() invoker.Invoker {
	if ref := c.interfaceInv.Load(); ref != nil {
		return ref.inv
	}
	return nil
}

func (c *ClusterInvoker) applicationInvoker() invoker.Invoker {
	if ref := c.applicationInv.Load(); ref != nil {
		return ref.inv
	}
	return nil
}

func invokerUsable(inv invoker.Invoker) bool {
	return inv != nil && !inv.IsDestroyed() && inv.IsAvailable()
}

func needsRefresh(inv invoker.Invoker) bool {
	return inv == nil || inv.IsDestroyed() || !inv.HasAddresses()
}
