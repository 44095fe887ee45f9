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

package invoker

import (
	"net/url"
	"strings"
)

// Target identifies a consumer-service binding: the service being
// subscribed to plus arbitrary subscription parameters. It plays the role
// of both the consumer registration and the subscription topic.
//
// Target is a value type. Mutating methods return copies; a Target held
// by a Directory is never modified in place.
type Target struct {
	// Service is the fully qualified service interface name.
	Service string
	// Group is the service group, if any.
	Group string
	// Version is the service version, if any.
	Version string
	// Params holds additional subscription parameters.
	Params url.Values
}

// ServiceKey returns the canonical group/service:version key for the
// target. Empty group and version components are omitted.
func (t Target) ServiceKey() string {
	var sb strings.Builder
	if t.Group != "" {
		sb.WriteString(t.Group)
		sb.WriteByte('/')
	}
	sb.WriteString(t.Service)
	if t.Version != "" {
		sb.WriteByte(':')
		sb.WriteString(t.Version)
	}
	return sb.String()
}

// WithParam returns a copy of the target with the given parameter set,
// replacing any existing values for the key.
func (t Target) WithParam(key, value string) Target {
	params := make(url.Values, len(t.Params)+1)
	for k, v := range t.Params {
		params[k] = append([]string(nil), v...)
	}
	params.Set(key, value)
	t.Params = params
	return t
}

// Param returns the first value for the given parameter key, or the
// empty string if unset.
func (t Target) Param(key string) string {
	return t.Params.Get(key)
}

func (t Target) String() string {
	key := t.ServiceKey()
	if len(t.Params) == 0 {
		return key
	}
	return key + "?" + t.Params.Encode()
}
