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
	"context"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// I2CBus serialises access to the devices on a single I2C bus.
type I2CBus interface {
	// Execute an option on the bus.
	Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
	// Close the bus and all devices on it
	Close() error
}

// I2CDevice communicates with a device on the I2C Bus that has a specific address.
type I2CDevice interface {
	// Read a byte from given register
	ReadByteReg(reg uint8) (uint8, error)
	// Write a byte to given register
	WriteByteReg(reg uint8, val uint8) error
}

type i2cBus struct {
	location             string
	devices              map[uint8]*i2cDevice
	queue                chan func()
	sclPin               int
	tryRecoverFromLockup bool
}

const (
	i2cRecoverNumClocks = 10    // # clock cycles for recovery
	i2cRecoverClockFreq = 50000 // clock frequency for recovery

	i2cRecoverClockDelay = time.Second / (2 * i2cRecoverClockFreq)
)

// NewI2CBus returns accessors the the I2C bus at the given location.
func NewI2CBus(location string, sclPin int, tryRecoverFromLockup bool) (I2CBus, error) {
	b := &i2cBus{
		location:             location,
		devices:              make(map[uint8]*i2cDevice),
		queue:                make(chan func()),
		sclPin:               sclPin,
		tryRecoverFromLockup: tryRecoverFromLockup,
	}
	go b.queueProcessor()
	if b.tryRecoverFromLockup {
		if err := b.recoverFromLockup(); err != nil {
			return nil, errors.Wrap(err, "failed to recover bus at startup")
		}
		time.Sleep(time.Second * 2)
	}
	return b, nil
}

// Execute an option on the bus.
func (b *i2cBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	result := make(chan error, 1)
	req := func() {
		result <- b.execute(ctx, address, op)
	}

	// Put request in queue
	select {
	case b.queue <- req:
		// Request is on the queue
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, the request always runs to completion
	return <-result
}

// Process bus requests from the queue until the queue is closed.
func (b *i2cBus) queueProcessor() {
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()

	for req := range b.queue {
		req()
	}
}

// Execute an option on the bus.
func (b *i2cBus) execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	addrLabel := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(addrLabel).Inc()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var dev *i2cDevice
		dev, err = b.openDevice(address)
		if err != nil {
			i2cExecuteErrorCounters.WithLabelValues(addrLabel).Inc()
			return errors.Wrapf(err, "openDevice(%d) failed", address)
		}

		err = op(ctx, dev)
		if err == nil {
			return nil
		}

		// Device call failed, close all devices
		for _, d := range b.devices {
			d.closeFile()
		}
		clear(b.devices)

		if b.tryRecoverFromLockup {
			if err := b.recoverFromLockup(); err != nil {
				i2cRecoveryTotal.WithLabelValues("failed").Inc()
				i2cExecuteErrorCounters.WithLabelValues(addrLabel).Inc()
				return errors.Wrap(err, "i2c recovery failed")
			}
			i2cRecoveryTotal.WithLabelValues("succeeded").Inc()
		} else {
			i2cRecoveryTotal.WithLabelValues("skipped").Inc()
		}
	}
	i2cExecuteErrorCounters.WithLabelValues(addrLabel).Inc()
	return errors.Wrap(err, "execute operation in i2c bus failed")
}

// Open a connection to a device at the given address.
func (b *i2cBus) openDevice(address uint8) (*i2cDevice, error) {
	if d, found := b.devices[address]; found {
		return d, nil
	}
	d, err := newI2CDevice(b.location, address)
	if err != nil {
		return nil, err
	}
	b.devices[address] = d
	return d, nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *i2cBus) DetectSlaveAddresses() []byte {
	result := make(chan []byte, 1)
	b.queue <- func() {
		var found []byte
		for addr := uint8(1); addr < 128; addr++ {
			if d, err := newI2CDevice(b.location, addr); err == nil {
				if err := d.DetectDevice(); err == nil {
					found = append(found, addr)
				}
				d.closeFile()
			}
		}
		result <- found
	}
	return <-result
}

// Close the bus and all devices on it
func (b *i2cBus) Close() error {
	result := make(chan error, 1)
	b.queue <- func() {
		var ae aerr.AggregateError
		for addr, d := range b.devices {
			if err := d.closeFile(); err != nil {
				ae.Add(err)
			}
			delete(b.devices, addr)
		}
		result <- ae.AsError()
	}
	err := <-result
	close(b.queue)
	return err
}

// Try to recover the i2c bus from lockup by clocking SCL manually.
func (b *i2cBus) recoverFromLockup() error {
	log := log.With().Str("component", "i2c").Int("scl", b.sclPin).Logger()
	log.Info().Msg("Performing i2c recovery ...")
	activeLow := true
	initialValue := true
	scl, err := gpio.Output(b.sclPin, activeLow, initialValue)
	if err != nil {
		return errors.Wrap(err, "failed to set scl pin to output")
	}
	for i := 0; i < i2cRecoverNumClocks; i++ {
		time.Sleep(i2cRecoverClockDelay)
		if err := scl.Write(false); err != nil {
			return errors.Wrap(err, "failed to lower scl during i2c recovery")
		}
		time.Sleep(i2cRecoverClockDelay)
		if err := scl.Write(true); err != nil {
			return errors.Wrap(err, "failed to raise scl during i2c recovery")
		}
	}
	// Reset pin to be input
	if _, err := gpio.Input(b.sclPin, activeLow); err != nil {
		return errors.Wrap(err, "failed to reset scl pin to input")
	}
	if err := os.WriteFile("/sys/class/gpio/unexport", []byte(strconv.Itoa(b.sclPin)), 0644); err != nil {
		return errors.Wrap(err, "failed to unexport scl pin")
	}
	log.Info().Msg("Performed i2c recovery.")
	return nil
}
