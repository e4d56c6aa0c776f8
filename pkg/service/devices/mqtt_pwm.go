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
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PwmPool/pkg/mqtt"
	"github.com/binkynet/PwmPool/pkg/pwm"
)

// mqttPWM drives pool channels on the pins of a remote PWM device that
// listens on an MQTT broker.
// Commands are published to <prefix>/pin<N>/duty and <prefix>/period.
type mqttPWM struct {
	reporter
	mutex       sync.Mutex
	client      mqtt.Service
	topicPrefix string
	pinCount    int
	outputs     map[int]pwm.PinID // channel -> remote pin
	duties      map[int]float64   // channel -> last duty ratio
}

// NewMQTTPWM creates a driver for a remote device with the given number of pins.
func NewMQTTPWM(client mqtt.Service, topicPrefix string, pinCount int, log zerolog.Logger) PWMDriver {
	topicPrefix = strings.TrimSuffix(topicPrefix, "/") + "/"
	return &mqttPWM{
		reporter:    newReporter("mqtt", log.With().Str("topic-prefix", topicPrefix).Logger()),
		client:      client,
		topicPrefix: topicPrefix,
		pinCount:    pinCount,
		outputs:     make(map[int]pwm.PinID),
		duties:      make(map[int]float64),
	}
}

// Name of the driver type
func (d *mqttPWM) Name() string { return "mqtt" }

// PinCount returns the number of remote pins.
func (d *mqttPWM) PinCount() int { return d.pinCount }

// Configure turns all remote pins off.
func (d *mqttPWM) Configure(ctx context.Context) error {
	return d.allOff(ctx)
}

// Close turns all remote pins off.
func (d *mqttPWM) Close(ctx context.Context) error {
	return d.allOff(ctx)
}

func (d *mqttPWM) allOff(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for pin := 0; pin < d.pinCount; pin++ {
		if err := d.client.Publish(ctx, 0.0, d.dutyTopic(pwm.PinID(pin)), mqtt.QosAtLeastOnce, true); err != nil {
			return errors.Wrapf(err, "turn off pin %d failed", pin)
		}
	}
	return nil
}

// RedirectOutput publishes the channel's duty on the new pin and 0 on the old one.
func (d *mqttPWM) RedirectOutput(channel int, pin pwm.PinID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if pin < 0 || int(pin) >= d.pinCount {
		d.report("redirect", channel, errors.Errorf("pin %d out of range", pin))
		return
	}
	old, hasOld := d.outputs[channel]
	d.outputs[channel] = pin
	err := d.publishDuty(pin, d.duties[channel])
	if err == nil && hasOld && old != pin {
		err = d.publishDuty(old, 0)
	}
	d.report("redirect", channel, err)
}

// SetDutyRatio publishes the duty ratio for the channel's pin.
func (d *mqttPWM) SetDutyRatio(channel int, ratio float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.duties[channel] = ratio
	if pin, found := d.outputs[channel]; found {
		d.report("duty", channel, d.publishDuty(pin, ratio))
	}
}

// SetPeriodRegister publishes the shared period.
func (d *mqttPWM) SetPeriodRegister(channel int, periodUs int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	d.report("period", channel, d.client.Publish(ctx, periodUs, d.topicPrefix+"period", mqtt.QosAtLeastOnce, true))
}

// DisableOutput publishes 0 for the channel's pin and unbinds it.
func (d *mqttPWM) DisableOutput(channel int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	pin, found := d.outputs[channel]
	delete(d.outputs, channel)
	delete(d.duties, channel)
	if found {
		d.report("disable", channel, d.publishDuty(pin, 0))
	}
}

// caller holds lock
func (d *mqttPWM) publishDuty(pin pwm.PinID, ratio float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return d.client.Publish(ctx, ratio, d.dutyTopic(pin), mqtt.QosAtLeastOnce, true)
}

func (d *mqttPWM) dutyTopic(pin pwm.PinID) string {
	return fmt.Sprintf("%spin%d/duty", d.topicPrefix, pin)
}
