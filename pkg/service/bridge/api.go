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

package bridge

import (
	"time"

	"github.com/pkg/errors"
)

// API of the bridge, the board that hosts the PWM hardware.
// It provides the status LEDs and the I2C bus that PWM expanders are
// connected to.
type API interface {
	// Turn Green status led on/off
	SetGreenLED(on bool) error
	// Turn Red status led on/off
	SetRedLED(on bool) error
	// Blink Green status led with given duration between on/off
	BlinkGreenLED(delay time.Duration) error
	// Blink Red status led with given duration between on/off
	BlinkRedLED(delay time.Duration) error

	// Open the I2C bus
	I2CBus() (I2CBus, error)

	Close() error
}

// New creates the bridge of the given type (rpi|opz|virtual).
// When recoverI2C is set, a failing I2C bus is recovered by clocking SCL.
func New(bridgeType string, recoverI2C bool) (API, error) {
	switch bridgeType {
	case "rpi":
		return NewRaspberryPiBridge(recoverI2C)
	case "opz":
		return NewOrangePIZeroBridge(recoverI2C)
	case "virtual":
		return NewVirtualBridge()
	default:
		return nil, errors.Errorf("unknown bridge type '%s' (rpi|opz|virtual)", bridgeType)
	}
}
