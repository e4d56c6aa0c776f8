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

package pwm

// PinID identifies a physical output pin.
type PinID int

// MaxOutput is the device-native value of a fully-on duty cycle.
const MaxOutput = 1023

// Driver is the hardware capability consumed by the Pool.
// Channels are identified by their slot index in the pool.
//
// Register writes are treated as infallible by the pool; implementations
// report their own failures.
type Driver interface {
	// RedirectOutput binds the channel's output to the given pin without
	// losing its period configuration. The previous pin stops receiving PWM.
	RedirectOutput(channel int, pin PinID)
	// SetDutyRatio programs the duty cycle of the channel.
	// The ratio is >= 0, values above 1 are passed through unchecked.
	SetDutyRatio(channel int, ratio float64)
	// SetPeriodRegister programs the period register shared by all channels.
	SetPeriodRegister(channel int, periodUs int)
	// DisableOutput stops the output of the channel.
	DisableOutput(channel int)
}
