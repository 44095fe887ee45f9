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
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rpclb/migration/invoker"
)

// DelayKey is the configuration key consulted for the decision delay
// each time a delayed task is scheduled. The value is an integer number
// of milliseconds. Invalid values are logged and the default retained.
const DelayKey = "migration.delay"

// DefaultDelay is the decision delay used when no configuration value
// overrides it.
const DefaultDelay = 60 * time.Second

// Option customizes the behavior of a ClusterInvoker.
type Option interface {
	apply(*options)
}

// WithLogger configures the logger used for migration lifecycle events.
// If not specified, [slog.Default] is used.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(opts *options) {
		opts.logger = logger
	})
}

// WithScheduler configures the scheduler that runs delayed decision
// tasks. If not specified, a process-wide shared scheduler is used.
func WithScheduler(scheduler *Scheduler) Option {
	return optionFunc(func(opts *options) {
		opts.scheduler = scheduler
	})
}

// WithExtensions injects the registry of address comparators and
// pre-migration condition checkers. If not specified, an empty registry
// is used: no gate, and decisions default to completing migration.
func WithExtensions(exts *Extensions) Option {
	return optionFunc(func(opts *options) {
		opts.extensions = exts
	})
}

// WithReporter configures the status reporter notified as migration
// cycles conclude. If not specified, reports are written to the logger.
func WithReporter(reporter Reporter) Option {
	return optionFunc(func(opts *options) {
		opts.reporter = reporter
	})
}

// WithDelay configures the default decision delay for non-forced
// migration. The [DelayKey] configuration value, when present and
// valid, still takes precedence at scheduling time.
func WithDelay(delay time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.delay = delay
	})
}

// WithConfigLookup configures the lookup function for named
// configuration values such as [DelayKey]. An empty returned string
// means the value is unset. If not specified, values are looked up in
// the environment: "migration.delay" maps to RPCLB_MIGRATION_DELAY.
func WithConfigLookup(lookup func(key string) string) Option {
	return optionFunc(func(opts *options) {
		opts.lookup = lookup
	})
}

// WithStep sets the initial migration step. If not specified, the
// coordinator starts at [StepInterfaceFirst].
func WithStep(step Step) Option {
	return optionFunc(func(opts *options) {
		opts.step = step
	})
}

// WithInterfaceInvoker seeds the coordinator with an already-built
// interface-level invoker, avoiding an initial re-subscription.
func WithInterfaceInvoker(inv invoker.Invoker) Option {
	return optionFunc(func(opts *options) {
		opts.interfaceInv = inv
	})
}

// WithApplicationInvoker seeds the coordinator with an already-built
// application-level invoker.
func WithApplicationInvoker(inv invoker.Invoker) Option {
	return optionFunc(func(opts *options) {
		opts.applicationInv = inv
	})
}

// Binding attaches consumer-service metadata. When configured, the
// coordinator attaches itself under [BindingKey] at construction and
// detaches on destroy.
type Binding interface {
	Attach(key string, value any)
	Detach(key string)
}

// BindingKey is the metadata key a coordinator attaches itself under.
const BindingKey = "migration.cluster-invoker"

// WithBinding configures consumer metadata attachment.
func WithBinding(binding Binding) Option {
	return optionFunc(func(opts *options) {
		opts.binding = binding
	})
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

type options struct {
	logger         *slog.Logger
	scheduler      *Scheduler
	extensions     *Extensions
	reporter       Reporter
	delay          time.Duration
	lookup         func(key string) string
	step           Step
	interfaceInv   invoker.Invoker
	applicationInv invoker.Invoker
	binding        Binding
}

func (opts *options) applyDefaults() {
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.scheduler == nil {
		opts.scheduler = defaultScheduler()
	}
	if opts.extensions == nil {
		opts.extensions = NewExtensions()
	}
	if opts.reporter == nil {
		opts.reporter = logReporter{logger: opts.logger}
	}
	if opts.delay == 0 {
		opts.delay = DefaultDelay
	}
	if opts.lookup == nil {
		opts.lookup = envLookup
	}
}

func envLookup(key string) string {
	name := "RPCLB_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	return os.Getenv(name)
}
