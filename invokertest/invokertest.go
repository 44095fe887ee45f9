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

// Package invokertest provides fake implementations of the invoker
// capability interfaces for testing migration coordination.
package invokertest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rpclb/migration/invoker"
)

// FakeInvoker is a controllable implementation of invoker.Invoker. Its
// availability and address count can be flipped at any time from any
// goroutine; Invoke records calls and returns a canned response.
type FakeInvoker struct {
	// Name identifies the fake in test failure output.
	Name string
	// InvokeFunc, if set, handles Invoke calls. Otherwise Invoke
	// returns an empty response.
	InvokeFunc func(ctx context.Context, req *invoker.Request) (*invoker.Response, error)

	dir       *FakeDirectory
	available atomic.Bool
	destroyed atomic.Bool
	calls     atomic.Int64
}

// NewFakeInvoker creates a fake invoker wrapping the given directory.
// A nil directory gets a fresh empty one. The invoker starts live and
// unavailable, with no addresses.
func NewFakeInvoker(name string, dir *FakeDirectory) *FakeInvoker {
	if dir == nil {
		dir = NewFakeDirectory(invoker.Target{Service: name})
	}
	return &FakeInvoker{Name: name, dir: dir}
}

// Invoke implements invoker.Invoker.
func (f *FakeInvoker) Invoke(ctx context.Context, req *invoker.Request) (*invoker.Response, error) {
	f.calls.Add(1)
	if f.InvokeFunc != nil {
		return f.InvokeFunc(ctx, req)
	}
	return &invoker.Response{}, nil
}

// IsAvailable implements invoker.Invoker.
func (f *FakeInvoker) IsAvailable() bool {
	return f.available.Load() && !f.destroyed.Load()
}

// IsDestroyed implements invoker.Invoker.
func (f *FakeInvoker) IsDestroyed() bool {
	return f.destroyed.Load()
}

// HasAddresses implements invoker.Invoker.
func (f *FakeInvoker) HasAddresses() bool {
	return f.dir.AddressCount() > 0
}

// Directory implements invoker.Invoker.
func (f *FakeInvoker) Directory() invoker.Directory {
	return f.dir
}

// Destroy implements invoker.Invoker. It is idempotent.
func (f *FakeInvoker) Destroy() error {
	f.destroyed.Store(true)
	return nil
}

// SetAvailable flips the availability flag.
func (f *FakeInvoker) SetAvailable(available bool) {
	f.available.Store(available)
}

// Calls returns the number of Invoke calls observed.
func (f *FakeInvoker) Calls() int {
	return int(f.calls.Load())
}

// FakeDir returns the concrete fake directory for test manipulation.
func (f *FakeInvoker) FakeDir() *FakeDirectory {
	return f.dir
}

// FakeDirectory is a controllable implementation of invoker.Directory.
// It records the order of subscription operations and exposes Notify to
// fire the installed change listener the way a notification transport
// would, from whatever goroutine the test chooses.
type FakeDirectory struct {
	// SubscribeFunc, UnsubscribeFunc, if set, run during the matching
	// call while the operation is being recorded. Tests use these to
	// inject events mid-resubscribe.
	SubscribeFunc   func(target invoker.Target) error
	UnsubscribeFunc func(target invoker.Target) error

	mu        sync.Mutex
	listener  func()
	consumer  invoker.Target
	addresses int
	ops       []string
}

// NewFakeDirectory creates a fake directory registered under the given
// consumer target, with no addresses.
func NewFakeDirectory(consumer invoker.Target) *FakeDirectory {
	return &FakeDirectory{consumer: consumer}
}

// Subscribe implements invoker.Directory.
func (d *FakeDirectory) Subscribe(target invoker.Target) error {
	d.record("subscribe " + target.ServiceKey())
	if d.SubscribeFunc != nil {
		return d.SubscribeFunc(target)
	}
	return nil
}

// Unsubscribe implements invoker.Directory.
func (d *FakeDirectory) Unsubscribe(target invoker.Target) error {
	d.record("unsubscribe " + target.ServiceKey())
	if d.UnsubscribeFunc != nil {
		return d.UnsubscribeFunc(target)
	}
	return nil
}

// RebuildRouterChain implements invoker.Directory.
func (d *FakeDirectory) RebuildRouterChain(target invoker.Target) error {
	d.record("rebuild " + target.ServiceKey())
	return nil
}

// SetChangeListener implements invoker.Directory.
func (d *FakeDirectory) SetChangeListener(listener func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = listener
}

// RegisteredConsumerTarget implements invoker.Directory.
func (d *FakeDirectory) RegisteredConsumerTarget() invoker.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consumer
}

// SetRegisteredConsumerTarget implements invoker.Directory.
func (d *FakeDirectory) SetRegisteredConsumerTarget(target invoker.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumer = target
}

// AddressCount implements invoker.Directory.
func (d *FakeDirectory) AddressCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addresses
}

// SetAddressCount replaces the number of known addresses.
func (d *FakeDirectory) SetAddressCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = n
}

// Listener returns the currently installed change listener, or nil.
func (d *FakeDirectory) Listener() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listener
}

// Notify fires the installed change listener, if any, on the calling
// goroutine. It reports whether a listener was installed.
func (d *FakeDirectory) Notify() bool {
	listener := d.Listener()
	if listener == nil {
		return false
	}
	listener()
	return true
}

// Ops returns the recorded operation sequence.
func (d *FakeDirectory) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

func (d *FakeDirectory) record(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, op)
}

// FakeRegistry records register/unregister calls.
type FakeRegistry struct {
	mu  sync.Mutex
	ops []string
}

// NewFakeRegistry creates an empty fake registry.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{}
}

// Register implements invoker.Registry.
func (r *FakeRegistry) Register(target invoker.Target) error {
	r.record("register " + target.ServiceKey())
	return nil
}

// Unregister implements invoker.Registry.
func (r *FakeRegistry) Unregister(target invoker.Target) error {
	r.record("unregister " + target.ServiceKey())
	return nil
}

// Ops returns the recorded operation sequence.
func (r *FakeRegistry) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *FakeRegistry) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// FakeProvider hands out pre-built fake invokers. Each call to
// InterfaceInvoker or ApplicationInvoker pops the next queued invoker
// of that kind, or builds a fresh unavailable one if the queue is
// empty.
type FakeProvider struct {
	mu               sync.Mutex
	interfaceQueue   []*FakeInvoker
	applicationQueue []*FakeInvoker
	interfaceBuilds  int
	appBuilds        int
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// QueueInterface queues invokers returned by subsequent
// InterfaceInvoker calls, in order.
func (p *FakeProvider) QueueInterface(invokers ...*FakeInvoker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interfaceQueue = append(p.interfaceQueue, invokers...)
}

// QueueApplication queues invokers returned by subsequent
// ApplicationInvoker calls, in order.
func (p *FakeProvider) QueueApplication(invokers ...*FakeInvoker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applicationQueue = append(p.applicationQueue, invokers...)
}

// InterfaceInvoker implements invoker.Provider.
func (p *FakeProvider) InterfaceInvoker(target invoker.Target) (invoker.Invoker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interfaceBuilds++
	if len(p.interfaceQueue) > 0 {
		next := p.interfaceQueue[0]
		p.interfaceQueue = p.interfaceQueue[1:]
		return next, nil
	}
	return NewFakeInvoker("interface", NewFakeDirectory(target)), nil
}

// ApplicationInvoker implements invoker.Provider.
func (p *FakeProvider) ApplicationInvoker(target invoker.Target) (invoker.Invoker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appBuilds++
	if len(p.applicationQueue) > 0 {
		next := p.applicationQueue[0]
		p.applicationQueue = p.applicationQueue[1:]
		return next, nil
	}
	return NewFakeInvoker("application", NewFakeDirectory(target)), nil
}

// InterfaceBuilds returns how many interface invokers were requested.
func (p *FakeProvider) InterfaceBuilds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interfaceBuilds
}

// ApplicationBuilds returns how many application invokers were
// requested.
func (p *FakeProvider) ApplicationBuilds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appBuilds
}

// RecordingReporter collects status reports for assertions.
type RecordingReporter struct {
	mu       sync.Mutex
	outcomes []string
}

// NewRecordingReporter creates an empty recording reporter.
func NewRecordingReporter() *RecordingReporter {
	return &RecordingReporter{}
}

// Report implements the migration package's Reporter interface.
func (r *RecordingReporter) Report(_, _, _, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// Outcomes returns the outcome tags reported so far, in order.
func (r *RecordingReporter) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}
