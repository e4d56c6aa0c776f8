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
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/PwmPool/pkg/pwm"
)

// Device contains the API that is supported by all types of devices.
type Device interface {
	// Configure is called once to put the device in the desired state.
	Configure(ctx context.Context) error
	// Close brings the device back to a safe state.
	Close(ctx context.Context) error
}

// PWMDriver is a device that drives the channels of a pwm.Pool.
type PWMDriver interface {
	Device
	pwm.Driver
	// Name of the driver type
	Name() string
	// PinCount returns the number of output pins the driver can route a channel to.
	PinCount() int
}

const (
	// Time allowed for a single hardware write
	writeTimeout = time.Second
)

// reporter logs and counts hardware failures of a driver.
// The pool treats register writes as infallible, so failures end here.
type reporter struct {
	name string
	log  zerolog.Logger
}

func newReporter(name string, log zerolog.Logger) reporter {
	return reporter{
		name: name,
		log:  log.With().Str("component", "driver").Str("driver", name).Logger(),
	}
}

// report the outcome of an operation on the given channel.
func (r reporter) report(op string, channel int, err error) {
	driverOperationsTotal.WithLabelValues(r.name, op).Inc()
	if err != nil {
		driverErrorsTotal.WithLabelValues(r.name, op).Inc()
		r.log.Error().Err(err).
			Str("op", op).
			Int("channel", channel).
			Msg("PWM hardware write failed")
	}
}
