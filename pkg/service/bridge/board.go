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
	"sync"

	"github.com/pkg/errors"
)

// boardBridge is a bridge for a single board computer with two status
// leds and one I2C bus device.
type boardBridge struct {
	ledPair
	mutex     sync.Mutex
	busDevice string
	sclPin    int
	recover   bool
	bus       I2CBus
}

const (
	rpiGreenLedPin = 23
	rpiRedLedPin   = 24
	rpiSclPin      = 3
	rpiI2CDevice   = "/dev/i2c-1"

	opzGreenLedPin = 19
	opzRedLedPin   = 18
	opzSclPin      = 11
	opzI2CDevice   = "/dev/i2c-0"
)

// NewRaspberryPiBridge implements the bridge for Raspberry PI's
func NewRaspberryPiBridge(recoverI2C bool) (API, error) {
	return newBoardBridge(rpiGreenLedPin, rpiRedLedPin, rpiI2CDevice, rpiSclPin, recoverI2C)
}

// NewOrangePIZeroBridge implements the bridge for an Orange PI Zero
func NewOrangePIZeroBridge(recoverI2C bool) (API, error) {
	return newBoardBridge(opzGreenLedPin, opzRedLedPin, opzI2CDevice, opzSclPin, recoverI2C)
}

func newBoardBridge(greenPin, redPin int, busDevice string, sclPin int, recoverI2C bool) (API, error) {
	leds, err := newLedPair(greenPin, redPin)
	if err != nil {
		return nil, err
	}
	return &boardBridge{
		ledPair:   leds,
		busDevice: busDevice,
		sclPin:    sclPin,
		recover:   recoverI2C,
	}, nil
}

// Open the I2C bus
func (p *boardBridge) I2CBus() (I2CBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := NewI2CBus(p.busDevice, p.sclPin, p.recover)
		if err != nil {
			return nil, errors.Wrap(err, "NewI2CBus failed")
		}
		p.bus = bus
	}
	return p.bus, nil
}

func (p *boardBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.green.Set(false)
	p.red.Set(false)
	if p.bus != nil {
		bus := p.bus
		p.bus = nil
		if err := bus.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	return nil
}
