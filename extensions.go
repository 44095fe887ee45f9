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

	"github.com/rpclb/migration/invoker"
)

// Comparator votes on whether a migration cycle should finalize to the
// application-level source. The rule value is whatever was last pushed
// through SetMigrationRule; implementations type-assert it themselves.
//
// Comparators must be safe for concurrent use and should be pure
// functions over their arguments.
type Comparator interface {
	ShouldMigrate(app, iface invoker.Invoker, rule any) bool
}

// ComparatorFunc adapts a function to the Comparator interface.
type ComparatorFunc func(app, iface invoker.Invoker, rule any) bool

// ShouldMigrate implements Comparator.
func (f ComparatorFunc) ShouldMigrate(app, iface invoker.Invoker, rule any) bool {
	return f(app, iface, rule)
}

// ConditionChecker is the single admission gate evaluated before a
// migration attempt begins. Rejection makes the attempt equivalent to a
// fallback to the interface-level source.
type ConditionChecker interface {
	CheckCondition(consumer invoker.Target) bool
}

// CheckerFunc adapts a function to the ConditionChecker interface.
type CheckerFunc func(consumer invoker.Target) bool

// CheckCondition implements ConditionChecker.
func (f CheckerFunc) CheckCondition(consumer invoker.Target) bool {
	return f(consumer)
}

// Extensions is a registry of pluggable migration capabilities,
// resolved at startup and injected into coordinators via
// [WithExtensions]. It replaces ad hoc lookup: registering test doubles
// is just constructing a registry by hand.
type Extensions struct {
	mu          sync.RWMutex
	comparators []Comparator
	checkers    []ConditionChecker
}

// NewExtensions returns an empty registry.
func NewExtensions() *Extensions {
	return &Extensions{}
}

// RegisterComparator adds an address comparator. All registered
// comparators are consulted per decision; consent must be unanimous.
func (e *Extensions) RegisterComparator(c Comparator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.comparators = append(e.comparators, c)
}

// RegisterChecker adds a pre-migration condition checker. Only the
// first registered checker is ever consulted: the gate is an
// environment-wide admission decision, not a quorum.
func (e *Extensions) RegisterChecker(c ConditionChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers = append(e.checkers, c)
}

// Comparators returns a snapshot of the registered comparators.
func (e *Extensions) Comparators() []Comparator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Comparator, len(e.comparators))
	copy(out, e.comparators)
	return out
}

// Checker returns the first registered condition checker, if any.
func (e *Extensions) Checker() (ConditionChecker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.checkers) == 0 {
		return nil, false
	}
	return e.checkers[0], true
}
