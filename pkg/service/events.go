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

package service

import (
	"time"

	"github.com/binkynet/PwmPool/pkg/pwm"
)

// EventKind identifies what happened in the pool.
type EventKind string

const (
	EventAllocated  EventKind = "allocated"
	EventReclaimed  EventKind = "reclaimed"
	EventReleased   EventKind = "released"
	EventWritten    EventKind = "written"
	EventRedirected EventKind = "redirected"
	EventPeriod     EventKind = "period"
)

// Event describes a change of a channel in the pool.
type Event struct {
	// Seq increases by one for every event, starting at 1
	Seq         uint64          `json:"seq"`
	Kind        EventKind       `json:"kind"`
	Time        time.Time       `json:"time"`
	Handle      pwm.Handle      `json:"handle"`
	Pin         pwm.PinID       `json:"pin"`
	PreviousPin pwm.PinID       `json:"previous_pin"`
	Duty        float64         `json:"duty"`
	Persistence pwm.Persistence `json:"persistence"`
	PeriodUs    int             `json:"period_us"`
}

// HasPreviousPin returns true for events that moved a channel off a pin.
func (e Event) HasPreviousPin() bool {
	return e.Kind == EventReclaimed || e.Kind == EventRedirected
}
