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
	"testing"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakePin records the last level or PWM setting of a pin.
type fakePin struct {
	gpio.PinOut
	name   string
	level  gpio.Level
	duty   gpio.Duty
	freq   physic.Frequency
	pwm    bool
	halted bool
}

func (p *fakePin) Name() string { return p.name }

func (p *fakePin) Out(l gpio.Level) error {
	p.level, p.pwm = l, false
	return nil
}

func (p *fakePin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.duty, p.freq, p.pwm = duty, f, true
	return nil
}

func (p *fakePin) Halt() error {
	p.halted = true
	return nil
}

func newTestPeriph(count int) (PWMDriver, []*fakePin) {
	fakes := make([]*fakePin, count)
	pins := make([]gpio.PinOut, count)
	for i := range fakes {
		fakes[i] = &fakePin{name: "GPIO" + string(rune('0'+i)), level: gpio.High}
		pins[i] = fakes[i]
	}
	return NewPeriph(pins, zerolog.Nop()), fakes
}

func TestPeriphConfigureAndClose(t *testing.T) {
	d, pins := newTestPeriph(2)
	if d.PinCount() != 2 {
		t.Errorf("expected 2 pins, got %d", d.PinCount())
	}
	if err := d.Configure(context.Background()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	for _, p := range pins {
		if p.level != gpio.Low {
			t.Errorf("%s: expected low after Configure", p.name)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, p := range pins {
		if !p.halted {
			t.Errorf("%s: expected halted after Close", p.name)
		}
	}
}

func TestPeriphDutyAndPeriod(t *testing.T) {
	d, pins := newTestPeriph(3)

	d.RedirectOutput(0, 1)
	if pins[1].pwm || pins[1].level != gpio.Low {
		t.Errorf("fresh channel: expected pin low")
	}

	d.SetDutyRatio(0, 0.5)
	if !pins[1].pwm || pins[1].duty != gpio.DutyHalf {
		t.Errorf("expected half duty PWM, got %v", pins[1].duty)
	}
	if pins[1].freq != physic.KiloHertz {
		t.Errorf("expected default 1kHz, got %v", pins[1].freq)
	}

	// Shared period is picked up with the next duty write
	d.SetPeriodRegister(0, 20000)
	d.SetDutyRatio(0, 0.5)
	if pins[1].freq != 50*physic.Hertz {
		t.Errorf("expected 50Hz, got %v", pins[1].freq)
	}

	d.SetDutyRatio(0, 1)
	if pins[1].pwm || pins[1].level != gpio.High {
		t.Errorf("full duty: expected pin high")
	}
}

func TestPeriphRedirectAndDisable(t *testing.T) {
	d, pins := newTestPeriph(3)

	d.RedirectOutput(0, 0)
	d.SetDutyRatio(0, 1)
	d.RedirectOutput(0, 2)
	if pins[2].level != gpio.High {
		t.Errorf("new pin: expected previous duty")
	}
	if pins[0].level != gpio.Low {
		t.Errorf("old pin: expected low")
	}

	d.DisableOutput(0)
	if pins[2].level != gpio.Low {
		t.Errorf("disabled pin: expected low")
	}

	// Out of range pins are ignored
	d.RedirectOutput(1, 3)
	d.SetDutyRatio(1, 1)
	for _, p := range []*fakePin{pins[0], pins[2]} {
		if p.level != gpio.Low || p.pwm {
			t.Errorf("%s: expected pin to stay low", p.name)
		}
	}
}
