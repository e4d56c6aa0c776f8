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
	"math"
	"sync"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/binkynet/PwmPool/pkg/pwm"
)

// periphDriver drives pool channels on PWM capable SoC pins.
// Pin IDs are indexes into the configured list of pins.
type periphDriver struct {
	reporter
	mutex    sync.Mutex
	pins     []gpio.PinOut
	outputs  map[int]pwm.PinID // channel -> pin index
	duties   map[int]float64   // channel -> last duty ratio
	periodUs int               // last programmed shared period
}

const (
	periphDefaultPeriod = 1000 // us, 1kHz
)

// ResolvePeriphPins looks up the given pin names in the periph registry.
// periph host drivers must be initialized before calling this.
func ResolvePeriphPins(names []string) ([]gpio.PinOut, error) {
	result := make([]gpio.PinOut, 0, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, errors.Errorf("unknown pin '%s'", name)
		}
		result = append(result, p)
	}
	return result, nil
}

// NewPeriph creates a driver for the given pins.
func NewPeriph(pins []gpio.PinOut, log zerolog.Logger) PWMDriver {
	return &periphDriver{
		reporter: newReporter("periph", log),
		pins:     pins,
		outputs:  make(map[int]pwm.PinID),
		duties:   make(map[int]float64),
	}
}

// Name of the driver type
func (d *periphDriver) Name() string { return "periph" }

// PinCount returns the number of configured pins.
func (d *periphDriver) PinCount() int { return len(d.pins) }

// Configure drives all pins low.
func (d *periphDriver) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, p := range d.pins {
		if err := p.Out(gpio.Low); err != nil {
			return errors.Wrapf(err, "Out[%s] failed", p.Name())
		}
	}
	return nil
}

// Close drives all pins low and halts them.
func (d *periphDriver) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var ae aerr.AggregateError
	for _, p := range d.pins {
		if err := p.Out(gpio.Low); err != nil {
			ae.Add(errors.Wrapf(err, "Out[%s] failed", p.Name()))
		}
		if err := p.Halt(); err != nil {
			ae.Add(errors.Wrapf(err, "Halt[%s] failed", p.Name()))
		}
	}
	return ae.AsError()
}

// RedirectOutput drives the channel's duty on the new pin and the old pin low.
func (d *periphDriver) RedirectOutput(channel int, pin pwm.PinID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if pin < 0 || int(pin) >= len(d.pins) {
		d.report("redirect", channel, errors.Errorf("pin %d out of range", pin))
		return
	}
	old, hasOld := d.outputs[channel]
	d.outputs[channel] = pin
	err := d.apply(pin, d.duties[channel])
	if err == nil && hasOld && old != pin {
		err = d.pins[old].Out(gpio.Low)
	}
	d.report("redirect", channel, err)
}

// SetDutyRatio drives the channel's pin with the given duty ratio.
func (d *periphDriver) SetDutyRatio(channel int, ratio float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.duties[channel] = ratio
	if pin, found := d.outputs[channel]; found {
		d.report("duty", channel, d.apply(pin, ratio))
	}
}

// SetPeriodRegister stores the shared period.
// It takes effect on a pin with the next duty write to that pin.
func (d *periphDriver) SetPeriodRegister(channel int, periodUs int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.periodUs = periodUs
	d.report("period", channel, nil)
}

// DisableOutput drives the channel's pin low and unbinds it.
func (d *periphDriver) DisableOutput(channel int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	pin, found := d.outputs[channel]
	delete(d.outputs, channel)
	delete(d.duties, channel)
	if found {
		d.report("disable", channel, d.pins[pin].Out(gpio.Low))
	}
}

// apply drives the given pin with the given duty ratio at the shared period.
// caller holds lock
func (d *periphDriver) apply(pin pwm.PinID, ratio float64) error {
	p := d.pins[pin]
	switch {
	case ratio <= 0:
		return p.Out(gpio.Low)
	case ratio >= 1:
		return p.Out(gpio.High)
	}
	periodUs := d.periodUs
	if periodUs <= 0 {
		periodUs = periphDefaultPeriod
	}
	duty := gpio.Duty(math.Round(ratio * float64(gpio.DutyMax)))
	freq := physic.PeriodToFrequency(time.Duration(periodUs) * time.Microsecond)
	if err := p.PWM(duty, freq); err != nil {
		return errors.Wrapf(err, "PWM[%s] failed", p.Name())
	}
	return nil
}
