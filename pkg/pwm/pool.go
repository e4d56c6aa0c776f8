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

import (
	"math"

	"github.com/pkg/errors"
)

// channel is the state of one occupied slot.
type channel struct {
	pin         PinID
	duty        float64
	persistence Persistence
}

// neverAllocated is the value of lastUsed before the first allocation.
const neverAllocated = -1

// Pool multiplexes PWM requests onto a fixed number of hardware channels
// that share a single period register.
//
// A Pool is not safe for concurrent use. All calls must come from a single
// goroutine, or be serialized by the caller.
type Pool struct {
	driver      Driver
	slots       []*channel
	generations []uint32
	lastUsed    int
	periodUs    int
}

// SlotInfo describes the state of a single slot.
type SlotInfo struct {
	Slot        int         `json:"slot"`
	InUse       bool        `json:"in_use"`
	Handle      Handle      `json:"handle"`
	Pin         PinID       `json:"pin"`
	Duty        float64     `json:"duty"`
	Persistence Persistence `json:"persistence"`
}

// NewPool creates a pool of the given number of channels driven by the given driver.
func NewPool(capacity int, driver Driver) (*Pool, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "capacity must be >= 1, got %d", capacity)
	}
	if driver == nil {
		return nil, errors.Wrap(ErrInvalidParameter, "driver is required")
	}
	p := &Pool{
		driver:      driver,
		slots:       make([]*channel, capacity),
		generations: make([]uint32, capacity),
		lastUsed:    neverAllocated,
	}
	for i := range p.generations {
		p.generations[i] = 1
	}
	return p, nil
}

// Capacity returns the number of hardware channels in the pool.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// LastUsed returns the index of the most recently allocated or reclaimed
// slot, or -1 if nothing has been allocated yet.
func (p *Pool) LastUsed() int {
	return p.lastUsed
}

// Allocate binds a channel to the given pin.
//
// Empty slots are used first, in index order. When the pool is full, the
// first transient channel after the last used slot is reclaimed, wrapping
// around. The last used slot itself is only reclaimed when no other
// transient channel exists. A reclaimed channel keeps its duty until the
// new owner writes one.
//
// A pin can be driven by one channel only. Allocating a pin that a live
// channel already drives fails with ErrPinInUse, also when that channel is
// transient and could otherwise be reclaimed.
func (p *Pool) Allocate(pin PinID, persistence Persistence) (Handle, error) {
	if pin < 0 {
		return Handle{}, errors.Wrapf(ErrInvalidParameter, "pin must be >= 0, got %d", pin)
	}
	if !persistence.IsValid() {
		return Handle{}, errors.Wrapf(ErrInvalidParameter, "unknown persistence %d", uint8(persistence))
	}
	if p.isBound(pin, neverAllocated) {
		return Handle{}, errors.Wrapf(ErrPinInUse, "pin %d", pin)
	}

	// Try to find a blank slot first
	for i, c := range p.slots {
		if c == nil {
			p.slots[i] = &channel{pin: pin, persistence: persistence}
			p.lastUsed = i
			p.driver.RedirectOutput(i, pin)
			p.driver.SetDutyRatio(i, 0)
			return p.handle(i), nil
		}
	}

	// Pool is full, so lastUsed is a valid index here.
	n := len(p.slots)
	for i := (p.lastUsed + 1) % n; i != p.lastUsed; i = (i + 1) % n {
		if p.slots[i].persistence == Transient {
			p.reclaim(i, pin, persistence)
			return p.handle(i), nil
		}
	}
	if p.slots[p.lastUsed].persistence == Transient {
		i := p.lastUsed
		p.reclaim(i, pin, persistence)
		return p.handle(i), nil
	}
	return Handle{}, maskAny(ErrNoChannelsAvailable)
}

// reclaim hands an occupied transient slot to a new owner.
// The slot generation is kept, so the previous owner can still observe
// the move through Pin.
func (p *Pool) reclaim(i int, pin PinID, persistence Persistence) {
	c := p.slots[i]
	p.lastUsed = i
	c.persistence = persistence
	p.redirect(i, c, pin)
}

// Release disables the output of the channel and frees its slot.
// The handle, and every copy of it, is invalid afterwards.
func (p *Pool) Release(h Handle) error {
	c, err := p.lookup(h)
	if err != nil {
		return err
	}
	p.driver.DisableOutput(h.slot)
	c.persistence = Transient
	for i, x := range p.slots {
		if x == c {
			p.slots[i] = nil
			p.nextGeneration(i)
		}
	}
	return nil
}

// Write sets the duty ratio of the channel.
// Negative ratios are rejected; ratios above 1 are passed to the driver as is.
func (p *Pool) Write(h Handle, ratio float64) error {
	c, err := p.lookup(h)
	if err != nil {
		return err
	}
	if !(ratio >= 0) {
		return errors.Wrapf(ErrInvalidParameter, "duty ratio must be >= 0, got %v", ratio)
	}
	p.driver.SetDutyRatio(h.slot, ratio)
	c.duty = ratio
	return nil
}

// Redirect moves the output of the channel to the given pin.
// The owner of the previous pin is not notified.
func (p *Pool) Redirect(h Handle, pin PinID) error {
	c, err := p.lookup(h)
	if err != nil {
		return err
	}
	if pin < 0 {
		return errors.Wrapf(ErrInvalidParameter, "pin must be >= 0, got %d", pin)
	}
	if p.isBound(pin, h.slot) {
		return errors.Wrapf(ErrPinInUse, "pin %d", pin)
	}
	p.redirect(h.slot, c, pin)
	return nil
}

func (p *Pool) redirect(i int, c *channel, pin PinID) {
	p.driver.RedirectOutput(i, pin)
	c.pin = pin
}

// Pin returns the pin currently driven by the channel.
// Owners of transient channels should check it before relying on
// continued output, since the channel may have been reclaimed.
func (p *Pool) Pin(h Handle) (PinID, error) {
	c, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	return c.pin, nil
}

// Duty returns the last duty ratio written to the channel.
func (p *Pool) Duty(h Handle) (float64, error) {
	c, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	return c.duty, nil
}

// DutyRawUnits returns the last duty ratio in device units (0..MaxOutput).
func (p *Pool) DutyRawUnits(h Handle) (int, error) {
	c, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	return int(math.Round(c.duty * MaxOutput)), nil
}

// Persistence returns the current persistence of the channel.
func (p *Pool) Persistence(h Handle) (Persistence, error) {
	c, err := p.lookup(h)
	if err != nil {
		return Transient, err
	}
	return c.persistence, nil
}

// Info returns the slot state of the channel.
func (p *Pool) Info(h Handle) (SlotInfo, error) {
	if _, err := p.lookup(h); err != nil {
		return SlotInfo{}, err
	}
	return p.slotInfo(h.slot), nil
}

// PeriodUs returns the period shared by all channels in microseconds.
// Zero means the period has never been set.
func (p *Pool) PeriodUs() int {
	return p.periodUs
}

// SetPeriodUs sets the period shared by ALL channels, in microseconds.
//
// Only the duty of the calling channel is re-applied after the period
// register changed. Other channels keep hardware duty values computed for
// the old period until they write again.
func (p *Pool) SetPeriodUs(h Handle, periodUs int) error {
	c, err := p.lookup(h)
	if err != nil {
		return err
	}
	if periodUs < 0 {
		return errors.Wrapf(ErrInvalidParameter, "period must be >= 0, got %d", periodUs)
	}
	p.driver.SetPeriodRegister(h.slot, periodUs)
	p.driver.SetDutyRatio(h.slot, c.duty)
	p.periodUs = periodUs
	return nil
}

// Period returns the shared period in milliseconds.
func (p *Pool) Period() int {
	return p.PeriodUs() / 1000
}

// SetPeriod sets the shared period in milliseconds.
// See SetPeriodUs.
func (p *Pool) SetPeriod(h Handle, periodMs int) error {
	if periodMs > math.MaxInt/1000 || periodMs < math.MinInt/1000 {
		return errors.Wrapf(ErrInvalidParameter, "period %dms out of range", periodMs)
	}
	return p.SetPeriodUs(h, periodMs*1000)
}

// Snapshot returns the state of all slots, in slot order.
func (p *Pool) Snapshot() []SlotInfo {
	result := make([]SlotInfo, len(p.slots))
	for i := range p.slots {
		result[i] = p.slotInfo(i)
	}
	return result
}

func (p *Pool) slotInfo(i int) SlotInfo {
	c := p.slots[i]
	if c == nil {
		return SlotInfo{Slot: i}
	}
	return SlotInfo{
		Slot:        i,
		InUse:       true,
		Handle:      p.handle(i),
		Pin:         c.pin,
		Duty:        c.duty,
		Persistence: c.persistence,
	}
}

// lookup returns the live channel the given handle refers to.
func (p *Pool) lookup(h Handle) (*channel, error) {
	if h.slot < 0 || h.slot >= len(p.slots) {
		return nil, errors.Wrapf(ErrInvalidParameter, "slot %d out of range", h.slot)
	}
	c := p.slots[h.slot]
	if c == nil || p.generations[h.slot] != h.generation {
		return nil, errors.Wrapf(ErrStaleHandle, "handle %s", h)
	}
	return c, nil
}

// isBound returns true if a live channel, other than the one in the given
// slot, drives the given pin.
func (p *Pool) isBound(pin PinID, exceptSlot int) bool {
	for i, c := range p.slots {
		if i != exceptSlot && c != nil && c.pin == pin {
			return true
		}
	}
	return false
}

func (p *Pool) handle(i int) Handle {
	return Handle{slot: i, generation: p.generations[i]}
}

func (p *Pool) nextGeneration(i int) {
	p.generations[i]++
	if p.generations[i] == 0 {
		// Zero is reserved for the zero Handle
		p.generations[i] = 1
	}
}
