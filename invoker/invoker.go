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

// Package invoker defines the capability types consumed by the
// [github.com/rpclb/migration] package: the dispatch handle bound to one
// address-resolution strategy, the subscription directory behind it, and
// the registry and provider used to (re-)establish subscriptions.
//
// Implementations of these interfaces belong to the embedding RPC
// framework. The migration package only coordinates between two Invoker
// instances; it never interprets addresses or load-balances within one.
package invoker

import "context"

// Invoker is a dispatch handle bound to one address-resolution strategy,
// either interface-level or application-level service discovery. It wraps
// its own subscription directory and whatever cluster fault-tolerance
// logic the embedding framework provides.
//
// An Invoker, once destroyed, is never reused. A fresh handle is obtained
// from a Provider through re-subscription.
type Invoker interface {
	// Invoke dispatches a single call. Errors from the underlying cluster
	// are returned verbatim; retry policy belongs to the cluster, not to
	// callers of this interface.
	Invoke(ctx context.Context, req *Request) (*Response, error)
	// IsAvailable reports whether the invoker can currently serve calls.
	IsAvailable() bool
	// IsDestroyed reports whether Destroy has completed.
	IsDestroyed() bool
	// HasAddresses reports whether the invoker's directory holds at least
	// one provider address.
	HasAddresses() bool
	// Directory returns the subscription directory backing this invoker.
	Directory() Directory
	// Destroy tears down the invoker and its subscriptions. It is
	// idempotent.
	Destroy() error
}

// Directory is the per-invoker subscription state. It delivers address
// change notifications through a single-slot change listener; the
// directory owns calling the listener, the installer owns its lifetime.
type Directory interface {
	// Subscribe starts receiving address notifications for the target.
	Subscribe(target Target) error
	// Unsubscribe stops receiving address notifications for the target.
	Unsubscribe(target Target) error
	// RebuildRouterChain rebuilds the routing chain for a new
	// subscription target.
	RebuildRouterChain(target Target) error
	// SetChangeListener installs the address-change listener. A nil
	// listener clears the slot. The listener may be invoked from
	// arbitrary goroutines.
	SetChangeListener(listener func())
	// RegisteredConsumerTarget returns the consumer registration this
	// directory was last registered under.
	RegisteredConsumerTarget() Target
	// SetRegisteredConsumerTarget records a new consumer registration.
	SetRegisteredConsumerTarget(target Target)
	// AddressCount returns the number of provider addresses currently
	// known to the directory.
	AddressCount() int
}

// Registry registers and unregisters consumer presence with the address
// registry backing a subscription.
type Registry interface {
	Register(target Target) error
	Unregister(target Target) error
}

// Provider is the source-resolution subsystem. It builds fresh invokers,
// one per strategy, already subscribed for the given target.
type Provider interface {
	// InterfaceInvoker returns a new invoker fed by per-interface
	// address notifications.
	InterfaceInvoker(target Target) (Invoker, error)
	// ApplicationInvoker returns a new invoker fed by per-application
	// instance notifications.
	ApplicationInvoker(target Target) (Invoker, error)
}

// Request describes a single RPC call to dispatch.
type Request struct {
	// Service is the fully qualified service name.
	Service string
	// Method is the method to call on the service.
	Method string
	// Args are the positional call arguments.
	Args []any
	// Attachments carries implicit call metadata.
	Attachments map[string]string
}

// Response is the result of a dispatched call.
type Response struct {
	// Value is the call's return value.
	Value any
	// Attachments carries implicit response metadata.
	Attachments map[string]string
}
