// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package environment

import (
	"testing"
)

func TestBridgeTypeFor(t *testing.T) {
	tests := []struct {
		machine, release string
		expected         string
	}{
		{"armv7l", "5.10.103-v7+", BridgeRaspberryPi},
		{"aarch64", "6.1.21-v8+", BridgeRaspberryPi},
		{"armv7l", "5.15.93-sunxi", BridgeOrangePIZero},
		{"x86_64", "6.5.0-generic", BridgeVirtual},
	}
	for _, tc := range tests {
		if got := bridgeTypeFor(tc.machine, tc.release); got != tc.expected {
			t.Errorf("%s/%s: expected %s, got %s", tc.machine, tc.release, tc.expected, got)
		}
	}
}
