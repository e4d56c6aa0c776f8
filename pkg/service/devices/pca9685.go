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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PwmPool/pkg/pwm"
	"github.com/binkynet/PwmPool/pkg/service/bridge"
)

// pca9685 drives pool channels on the 16 LED outputs of a PCA9685.
// The chip has a single PRE_SCALE register, so all outputs share one period.
type pca9685 struct {
	reporter
	mutex   sync.Mutex
	bus     bridge.I2CBus
	address uint8
	outputs map[int]pwm.PinID // channel -> LED output
	duties  map[int]float64   // channel -> last duty ratio
}

const (
	pca9685MODE1Reg      = 0x00
	pca9685LEDBaseReg    = 0x06
	pca9685AllOffHighReg = 0xFD
	pca9685PRESCALEReg   = 0xFE
	pca9685OnLowRegOfs   = 0
	pca9685OnHighRegOfs  = 1
	pca9685OffLowRegOfs  = 2
	pca9685OffHighRegOfs = 3
	pca9685RegIncrement  = 4

	pca9685OutputCount = 16
	pca9685MaxValue    = 4095
	pca9685FullBit     = 0x10 // bit 4 of ON_H / OFF_H

	pca9685ModeSleep = 0x11 // SLEEP=1, ALLCALL=1
	pca9685ModeAwake = 0x01 // SLEEP=0, ALLCALL=1

	pca9685OscillatorHz  = 25000000.0
	pca9685MinPrescale   = 3
	pca9685MaxPrescale   = 255
	pca9685DefaultPeriod = 20000 // us, 50Hz
)

// NewPCA9685 creates a driver for the PCA9685 at the given address on the given bus.
func NewPCA9685(bus bridge.I2CBus, address uint8, log zerolog.Logger) PWMDriver {
	return &pca9685{
		reporter: newReporter("pca9685", log.With().Uint8("address", address).Logger()),
		bus:      bus,
		address:  address,
		outputs:  make(map[int]pwm.PinID),
		duties:   make(map[int]float64),
	}
}

// Name of the driver type
func (d *pca9685) Name() string { return "pca9685" }

// PinCount returns the number of LED outputs.
func (d *pca9685) PinCount() int { return pca9685OutputCount }

// Configure programs the default period and turns all outputs off.
func (d *pca9685) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if err := dev.WriteByteReg(pca9685AllOffHighReg, pca9685FullBit); err != nil {
			return err
		}
		return writePrescale(dev, pca9685Prescale(pca9685DefaultPeriod))
	}); err != nil {
		return errors.Wrap(err, "configure pca9685 failed")
	}
	return nil
}

// Close turns all outputs off and puts the chip to sleep.
func (d *pca9685) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if err := dev.WriteByteReg(pca9685AllOffHighReg, pca9685FullBit); err != nil {
			return err
		}
		return dev.WriteByteReg(pca9685MODE1Reg, pca9685ModeSleep)
	}); err != nil {
		return errors.Wrap(err, "close pca9685 failed")
	}
	return nil
}

// RedirectOutput drives the channel's duty on the new output and turns the
// previous output fully off.
func (d *pca9685) RedirectOutput(channel int, pin pwm.PinID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if pin < 0 || int(pin) >= pca9685OutputCount {
		d.report("redirect", channel, errors.Errorf("output %d out of range", pin))
		return
	}
	old, hasOld := d.outputs[channel]
	duty := d.duties[channel]
	d.outputs[channel] = pin
	d.report("redirect", channel, d.execute(func(dev bridge.I2CDevice) error {
		if err := writeOutput(dev, pin, duty); err != nil {
			return err
		}
		if hasOld && old != pin {
			return writeOutput(dev, old, 0)
		}
		return nil
	}))
}

// SetDutyRatio programs the duty cycle of the output the channel is bound to.
func (d *pca9685) SetDutyRatio(channel int, ratio float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.duties[channel] = ratio
	output, found := d.outputs[channel]
	if !found {
		return
	}
	d.report("duty", channel, d.execute(func(dev bridge.I2CDevice) error {
		return writeOutput(dev, output, ratio)
	}))
}

// SetPeriodRegister programs PRE_SCALE. A period of 0 leaves the register unchanged.
func (d *pca9685) SetPeriodRegister(channel int, periodUs int) {
	if periodUs <= 0 {
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()

	prescale := pca9685Prescale(periodUs)
	d.report("period", channel, d.execute(func(dev bridge.I2CDevice) error {
		return writePrescale(dev, prescale)
	}))
}

// DisableOutput turns the channel's output fully off and unbinds it.
func (d *pca9685) DisableOutput(channel int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	output, found := d.outputs[channel]
	delete(d.outputs, channel)
	delete(d.duties, channel)
	if !found {
		return
	}
	d.report("disable", channel, d.execute(func(dev bridge.I2CDevice) error {
		return writeOutput(dev, output, 0)
	}))
}

func (d *pca9685) execute(op func(dev bridge.I2CDevice) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		return op(dev)
	})
}

// pca9685Prescale returns the PRE_SCALE value for the given period.
func pca9685Prescale(periodUs int) uint8 {
	freq := 1000000.0 / float64(periodUs)
	prescale := math.Round(pca9685OscillatorHz/(4096*freq)) - 1
	prescale = math.Max(pca9685MinPrescale, math.Min(pca9685MaxPrescale, prescale))
	return uint8(prescale)
}

// writePrescale writes PRE_SCALE, which is only writable while the chip sleeps.
func writePrescale(dev bridge.I2CDevice, prescale uint8) error {
	if err := dev.WriteByteReg(pca9685MODE1Reg, pca9685ModeSleep); err != nil {
		return err
	}
	if err := dev.WriteByteReg(pca9685PRESCALEReg, prescale); err != nil {
		return err
	}
	return dev.WriteByteReg(pca9685MODE1Reg, pca9685ModeAwake)
}

// writeOutput programs the ON/OFF registers of an output for the given duty ratio.
func writeOutput(dev bridge.I2CDevice, output pwm.PinID, ratio float64) error {
	var onHigh, offLow, offHigh uint8
	switch {
	case ratio >= 1:
		onHigh = pca9685FullBit
	case ratio <= 0:
		offHigh = pca9685FullBit
	default:
		off := uint32(math.Min(math.Round(ratio*(pca9685MaxValue+1)), pca9685MaxValue))
		offLow = uint8(off & 0xFF)
		offHigh = uint8((off >> 8) & 0x0F)
	}
	regBase := uint8(pca9685LEDBaseReg + int(output)*pca9685RegIncrement)
	for _, w := range []struct{ reg, val uint8 }{
		{regBase + pca9685OnLowRegOfs, 0},
		{regBase + pca9685OnHighRegOfs, onHigh},
		{regBase + pca9685OffLowRegOfs, offLow},
		{regBase + pca9685OffHighRegOfs, offHigh},
	} {
		if err := dev.WriteByteReg(w.reg, w.val); err != nil {
			return err
		}
	}
	return nil
}
