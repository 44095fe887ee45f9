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

import "fmt"

// Step is the migration step pushed by configuration. It drives the
// fallback dispatch policy used only while no migration decision has
// produced a selected invoker.
type Step int

const (
	// StepInterfaceFirst dispatches to the interface-level source. This
	// is the default for unknown steps as well.
	StepInterfaceFirst Step = iota
	// StepApplicationFirst dispatches to the interface-level source while
	// it is available, otherwise to the application-level source.
	StepApplicationFirst
	// StepForceApplication dispatches to the application-level source
	// unconditionally.
	StepForceApplication
)

func (s Step) String() string {
	switch s {
	case StepInterfaceFirst:
		return "INTERFACE_FIRST"
	case StepApplicationFirst:
		return "APPLICATION_FIRST"
	case StepForceApplication:
		return "FORCE_APPLICATION"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// ParseStep converts a step name, as it appears in rule documents and
// configuration, to a Step.
func ParseStep(name string) (Step, error) {
	switch name {
	case "INTERFACE_FIRST":
		return StepInterfaceFirst, nil
	case "APPLICATION_FIRST":
		return StepApplicationFirst, nil
	case "FORCE_APPLICATION":
		return StepForceApplication, nil
	default:
		return StepInterfaceFirst, fmt.Errorf("unknown migration step %q", name)
	}
}
