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
	"strings"
)

const (
	BridgeRaspberryPi  = "rpi"
	BridgeOrangePIZero = "opz"
	BridgeVirtual      = "virtual"
)

// bridgeTypeFor returns the bridge type for the given kernel machine & release.
func bridgeTypeFor(machine, release string) string {
	machine = strings.TrimSpace(machine)
	if !strings.HasPrefix(machine, "arm") && machine != "aarch64" {
		return BridgeVirtual
	}
	if strings.Contains(release, "sunxi") {
		return BridgeOrangePIZero
	}
	return BridgeRaspberryPi
}
