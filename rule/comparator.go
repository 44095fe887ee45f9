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

package rule

import "github.com/rpclb/migration/invoker"

// ThresholdComparator votes to migrate when the application-level source
// holds at least threshold-times as many addresses as the interface-level
// source. The threshold comes from the rule document, resolved per
// service key; with no threshold set, any non-empty application address
// set qualifies.
//
// It satisfies the migration package's Comparator interface.
type ThresholdComparator struct{}

// ShouldMigrate implements the comparator vote.
func (ThresholdComparator) ShouldMigrate(app, iface invoker.Invoker, r any) bool {
	if app == nil || app.IsDestroyed() || !app.HasAddresses() {
		return false
	}
	threshold := 0.0
	if mr, ok := r.(*Rule); ok && mr != nil {
		threshold = mr.ThresholdFor(app.Directory().RegisteredConsumerTarget().ServiceKey())
	}
	if iface == nil || iface.IsDestroyed() {
		return true
	}
	appCount := app.Directory().AddressCount()
	if threshold <= 0 {
		return appCount > 0
	}
	ifaceCount := iface.Directory().AddressCount()
	return float64(appCount) >= threshold*float64(ifaceCount)
}
