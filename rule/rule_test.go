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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ruleDoc = `
key: demo-app
step: APPLICATION_FIRST
threshold: 0.8
proportion: 60
delay: 30
force: false
interfaces:
  - serviceKey: demo/com.example.DemoService:1.0.0
    step: FORCE_APPLICATION
    threshold: 1.0
    force: true
  - serviceKey: com.example.GreetingService
    step: INTERFACE_FIRST
`

func TestParse(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]byte(ruleDoc))
	require.NoError(t, err)
	assert.Equal(t, "demo-app", parsed.Key)
	assert.Equal(t, "APPLICATION_FIRST", parsed.Step)
	assert.InDelta(t, 0.8, parsed.Threshold, 0.0001)
	assert.Equal(t, 60, parsed.Proportion)
	assert.Equal(t, 30, parsed.Delay)
	require.Len(t, parsed.Interfaces, 2)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("step: [unterminated"))
	require.Error(t, err)

	_, err = Parse([]byte("step: APPLICATION_FIRST"))
	require.ErrorContains(t, err, "missing key")
}

func TestResolutionPerService(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]byte(ruleDoc))
	require.NoError(t, err)

	const overridden = "demo/com.example.DemoService:1.0.0"
	assert.Equal(t, "FORCE_APPLICATION", parsed.StepFor(overridden))
	assert.InDelta(t, 1.0, parsed.ThresholdFor(overridden), 0.0001)
	assert.True(t, parsed.ForceFor(overridden))

	// Partial override falls back field by field.
	assert.Equal(t, "INTERFACE_FIRST", parsed.StepFor("com.example.GreetingService"))
	assert.InDelta(t, 0.8, parsed.ThresholdFor("com.example.GreetingService"), 0.0001)
	assert.False(t, parsed.ForceFor("com.example.GreetingService"))

	// Unknown services get the application-wide settings.
	assert.Equal(t, "APPLICATION_FIRST", parsed.StepFor("com.example.Other"))
	assert.InDelta(t, 0.8, parsed.ThresholdFor("com.example.Other"), 0.0001)
}
