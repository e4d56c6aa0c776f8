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

package devices

import (
	"context"
	"sync"

	"github.com/binkynet/PwmPool/pkg/pwm"
)

// Virtual is an in-memory PWM driver.
type Virtual struct {
	mutex    sync.Mutex
	pinCount int
	outputs  map[int]pwm.PinID
	duties   map[int]float64
	periodUs int
	ops      int
}

// VirtualOutput is the state of a single pin of a virtual driver.
type VirtualOutput struct {
	Pin      pwm.PinID
	Channel  int
	Duty     float64
	PeriodUs int
}

var _ PWMDriver = &Virtual{}

// NewVirtual creates an in-memory driver with the given number of pins.
func NewVirtual(pinCount int) *Virtual {
	return &Virtual{
		pinCount: pinCount,
		outputs:  make(map[int]pwm.PinID),
		duties:   make(map[int]float64),
	}
}

// Name of the driver type
func (d *Virtual) Name() string { return "virtual" }

// PinCount returns the number of virtual pins.
func (d *Virtual) PinCount() int { return d.pinCount }

// Configure is called once to put the device in the desired state.
func (d *Virtual) Configure(ctx context.Context) error { return nil }

// Close brings the device back to a safe state.
func (d *Virtual) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	clear(d.outputs)
	clear(d.duties)
	return nil
}

// RedirectOutput binds the channel to the given pin.
func (d *Virtual) RedirectOutput(channel int, pin pwm.PinID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ops++
	d.outputs[channel] = pin
}

// SetDutyRatio stores the duty ratio of the channel.
func (d *Virtual) SetDutyRatio(channel int, ratio float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ops++
	d.duties[channel] = ratio
}

// SetPeriodRegister stores the shared period.
func (d *Virtual) SetPeriodRegister(channel int, periodUs int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ops++
	d.periodUs = periodUs
}

// DisableOutput unbinds the channel.
func (d *Virtual) DisableOutput(channel int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ops++
	delete(d.outputs, channel)
	delete(d.duties, channel)
}

// Output returns the state of the given pin.
// Returns false if no channel drives the pin.
func (d *Virtual) Output(pin pwm.PinID) (VirtualOutput, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for channel, p := range d.outputs {
		if p == pin {
			return VirtualOutput{
				Pin:      pin,
				Channel:  channel,
				Duty:     d.duties[channel],
				PeriodUs: d.periodUs,
			}, true
		}
	}
	return VirtualOutput{}, false
}

// Operations returns the number of driver calls made so far.
func (d *Virtual) Operations() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ops
}
