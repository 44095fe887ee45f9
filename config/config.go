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

// Package config loads migration settings from a YAML file and the
// environment. Environment variables take precedence over file values
// and use the RPCLB_ prefix with dots and dashes mapped to underscores,
// so "migration.delay" is overridden by RPCLB_MIGRATION_DELAY.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Setting keys understood by the loader.
const (
	// KeyDelay is the migration decision delay, in milliseconds.
	KeyDelay = "migration.delay"
	// KeyStep is the default migration step name.
	KeyStep = "migration.step"
	// KeyRuleFile points at a YAML migration rule document.
	KeyRuleFile = "migration.rule-file"
)

// DefaultDelay is used when no delay setting is present.
const DefaultDelay = 60 * time.Second

// Config provides read access to loaded migration settings.
type Config struct {
	v *viper.Viper
}

// Load reads settings from the given file path, if non-empty, with
// environment overrides. An empty path loads from the environment and
// defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyDelay, int(DefaultDelay/time.Millisecond))
	v.SetDefault(KeyStep, "INTERFACE_FIRST")
	v.SetEnvPrefix("RPCLB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read migration config: %w", err)
		}
	}
	return &Config{v: v}, nil
}

// Delay returns the configured decision delay. Non-positive values fall
// back to DefaultDelay.
func (c *Config) Delay() time.Duration {
	ms := c.v.GetInt(KeyDelay)
	if ms <= 0 {
		return DefaultDelay
	}
	return time.Duration(ms) * time.Millisecond
}

// Step returns the configured default migration step name.
func (c *Config) Step() string {
	return c.v.GetString(KeyStep)
}

// RuleFile returns the configured rule document path, if any.
func (c *Config) RuleFile() string {
	return c.v.GetString(KeyRuleFile)
}

// Lookup returns the raw string value for a setting key. It satisfies
// the lookup function accepted by the migration coordinator's
// WithConfigLookup option.
func (c *Config) Lookup(key string) string {
	return c.v.GetString(key)
}
