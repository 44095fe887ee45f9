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

// Package migration coordinates a running RPC consumer's switch between
// two address-resolution strategies: per-interface address notifications
// (legacy) and per-application instance notifications (modern).
//
// The central type is [ClusterInvoker]. It holds at most one live
// [github.com/rpclb/migration/invoker.Invoker] per strategy, dispatches
// calls to a selected invoker once one is chosen, and otherwise falls
// back to a policy derived from the current migration [Step]. A
// migration cycle is started by [ClusterInvoker.MigrateToServiceDiscoveryInvoker]
// or [ClusterInvoker.FallbackToInterfaceInvoker], typically driven by an
// externally-pushed rule document (see
// [github.com/rpclb/migration/rule]) through [ClusterInvoker.Apply].
//
// In non-forced migration both sources refresh independently and a
// delayed decision task, run on a shared [Scheduler], finalizes the
// cycle by consulting the registered address comparators: migration to
// the modern source completes only if every comparator agrees. Forced
// migration finalizes synchronously on the first address notification
// from the modern source. Either way exactly one of the two sources is
// destroyed per cycle, and dispatch always has a valid target, even
// mid-decision.
package migration
