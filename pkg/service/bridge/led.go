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
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

type statusLed struct {
	sync.Mutex
	pin         gpio.OutputPin
	cancelBlink func()
}

// newStatusLed opens the given GPIO pin as an active-low led, initially off.
func newStatusLed(pinNumber int) (*statusLed, error) {
	activeLow := true
	initialValue := false
	pin, err := gpio.Output(pinNumber, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrapf(err, "Output[%d] failed", pinNumber)
	}
	return &statusLed{pin: pin}, nil
}

// Turn led on/off, cancel blink
func (l *statusLed) Set(on bool) error {
	l.Lock()
	defer l.Unlock()

	l.stopBlink()
	if err := l.pin.Write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

// Blink led on/off
func (l *statusLed) Blink(delay time.Duration) error {
	l.Lock()
	defer l.Unlock()

	l.stopBlink()
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go func() {
		value := true
		for {
			l.Lock()
			if ctx.Err() == nil {
				l.pin.Write(value)
				value = !value
			}
			l.Unlock()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// caller holds lock
func (l *statusLed) stopBlink() {
	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
}

// ledPair implements the led part of the API for boards with a green and red led.
type ledPair struct {
	green *statusLed
	red   *statusLed
}

func newLedPair(greenPin, redPin int) (ledPair, error) {
	green, err := newStatusLed(greenPin)
	if err != nil {
		return ledPair{}, errors.Wrap(err, "greenLed")
	}
	red, err := newStatusLed(redPin)
	if err != nil {
		return ledPair{}, errors.Wrap(err, "redLed")
	}
	return ledPair{green: green, red: red}, nil
}

// Turn Green status led on/off
func (p ledPair) SetGreenLED(on bool) error {
	return errors.Wrap(p.green.Set(on), "Set[greenLed] failed")
}

// Turn Red status led on/off
func (p ledPair) SetRedLED(on bool) error {
	return errors.Wrap(p.red.Set(on), "Set[redLed] failed")
}

// Blink Green status led with given duration between on/off
func (p ledPair) BlinkGreenLED(delay time.Duration) error {
	return errors.Wrap(p.green.Blink(delay), "Blink[greenLed] failed")
}

// Blink Red status led with given duration between on/off
func (p ledPair) BlinkRedLED(delay time.Duration) error {
	return errors.Wrap(p.red.Blink(delay), "Blink[redLed] failed")
}
