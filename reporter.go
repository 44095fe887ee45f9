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

import "log/slog"

// Outcome tags attached to status reports when a migration cycle
// concludes.
const (
	// OutcomeInterface: reverted to the interface-level source via
	// fallback.
	OutcomeInterface = "interface"
	// OutcomeApplication: forced migration finalized to the
	// application-level source.
	OutcomeApplication = "app"
	// OutcomeAppConfirmed: delayed decision confirmed migration to the
	// application-level source.
	OutcomeAppConfirmed = "app_app"
	// OutcomeAppReverted: delayed decision reverted to the
	// interface-level source.
	OutcomeAppReverted = "app_interface"
)

// Reporter receives consumption status reports as migration cycles
// conclude. Reports are fire-and-forget: implementations must not block
// and their failures never affect migration logic.
type Reporter interface {
	Report(service, version, group, outcome string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(service, version, group, outcome string)

// Report implements Reporter.
func (f ReporterFunc) Report(service, version, group, outcome string) {
	f(service, version, group, outcome)
}

// logReporter is the default Reporter; it writes reports to the
// coordinator's logger.
type logReporter struct {
	logger *slog.Logger
}

func (r logReporter) Report(service, version, group, outcome string) {
	r.logger.Info("consumption status",
		"service", service,
		"version", version,
		"group", group,
		"status", outcome,
	)
}
