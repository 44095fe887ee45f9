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

// Package rule models the externally-pushed migration rule document.
//
// A rule is authored as YAML and delivered wholesale by a configuration
// watcher. The migration coordinator itself treats the rule as opaque;
// only comparators and the rule handler interpret its structure.
package rule

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule is a migration rule document. Application-wide settings may be
// overridden per service through the Interfaces list.
type Rule struct {
	// Key identifies the application the rule applies to.
	Key string `yaml:"key"`
	// Step is the application-wide migration step name.
	Step string `yaml:"step"`
	// Threshold is the minimum ratio of application-level addresses to
	// interface-level addresses required to finalize migration. Zero or
	// negative means any non-empty application address set qualifies.
	Threshold float64 `yaml:"threshold"`
	// Proportion is the percentage of traffic eligible for migration.
	Proportion int `yaml:"proportion"`
	// Delay overrides the decision delay, in seconds.
	Delay int `yaml:"delay"`
	// Force finalizes migration without consulting comparators.
	Force bool `yaml:"force"`
	// Interfaces holds per-service overrides.
	Interfaces []ServiceRule `yaml:"interfaces"`
}

// ServiceRule overrides rule settings for a single service key.
type ServiceRule struct {
	ServiceKey string   `yaml:"serviceKey"`
	Step       string   `yaml:"step"`
	Threshold  *float64 `yaml:"threshold"`
	Force      *bool    `yaml:"force"`
}

// Parse decodes a YAML rule document.
func Parse(doc []byte) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("parse migration rule: %w", err)
	}
	if r.Key == "" {
		return nil, fmt.Errorf("parse migration rule: missing key")
	}
	return &r, nil
}

// StepFor resolves the effective step name for a service key: the
// per-service override if one names the key, otherwise the
// application-wide step. Returns the empty string when neither is set.
func (r *Rule) StepFor(serviceKey string) string {
	if sr := r.serviceRule(serviceKey); sr != nil && sr.Step != "" {
		return sr.Step
	}
	return r.Step
}

// ThresholdFor resolves the effective address threshold for a service
// key, falling back to the application-wide threshold.
func (r *Rule) ThresholdFor(serviceKey string) float64 {
	if sr := r.serviceRule(serviceKey); sr != nil && sr.Threshold != nil {
		return *sr.Threshold
	}
	return r.Threshold
}

// ForceFor resolves the effective force setting for a service key,
// falling back to the application-wide setting.
func (r *Rule) ForceFor(serviceKey string) bool {
	if sr := r.serviceRule(serviceKey); sr != nil && sr.Force != nil {
		return *sr.Force
	}
	return r.Force
}

func (r *Rule) serviceRule(serviceKey string) *ServiceRule {
	for i := range r.Interfaces {
		if r.Interfaces[i].ServiceKey == serviceKey {
			return &r.Interfaces[i]
		}
	}
	return nil
}
