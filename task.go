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

import "github.com/rpclb/migration/invoker"

// decide is the delayed decision task finalizing a non-forced migration
// cycle. It no-ops if the cycle was already finalized; otherwise it
// consults every registered comparator and finalizes to the
// application-level source only on unanimous consent. An empty
// comparator set counts as consent. The one-shot guard is claimed
// before any teardown, so a racing listener or a superseded task from
// an earlier cycle can never finalize twice.
func (c *ClusterInvoker) decide() {
	if c.migrated.Load() {
		return
	}

	comparators := c.exts.Comparators()
	if len(comparators) == 0 {
		if c.migrated.CompareAndSwap(false, true) {
			c.destroyInterfaceInvoker()
		}
		return
	}

	app, iface := c.applicationInvoker(), c.interfaceInvoker()
	agree := true
	for _, comparator := range comparators {
		if !c.shouldMigrate(comparator, app, iface) {
			agree = false
			break
		}
	}

	if !c.migrated.CompareAndSwap(false, true) {
		return
	}
	if agree {
		c.destroyInterfaceInvoker()
		c.report(OutcomeAppConfirmed)
	} else {
		c.destroyApplicationInvoker()
		c.report(OutcomeAppReverted)
	}
}

// shouldMigrate runs one comparator vote. A panicking comparator counts
// as dissent, failing safe toward not migrating.
func (c *ClusterInvoker) shouldMigrate(comparator Comparator, app, iface invoker.Invoker) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("address comparator panic, treating as dissent",
				"service", c.consumer.ServiceKey(), "panic", r)
			ok = false
		}
	}()
	return comparator.ShouldMigrate(app, iface, c.MigrationRule())
}
