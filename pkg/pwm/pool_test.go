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
	"fmt"
	"math"
	"reflect"
	"testing"
)

// recordingDriver captures all calls made by the pool.
type recordingDriver struct {
	calls []string
}

func (d *recordingDriver) RedirectOutput(channel int, pin PinID) {
	d.calls = append(d.calls, fmt.Sprintf("redirect %d %d", channel, pin))
}

func (d *recordingDriver) SetDutyRatio(channel int, ratio float64) {
	d.calls = append(d.calls, fmt.Sprintf("duty %d %v", channel, ratio))
}

func (d *recordingDriver) SetPeriodRegister(channel int, periodUs int) {
	d.calls = append(d.calls, fmt.Sprintf("period %d %d", channel, periodUs))
}

func (d *recordingDriver) DisableOutput(channel int) {
	d.calls = append(d.calls, fmt.Sprintf("disable %d", channel))
}

func (d *recordingDriver) reset() {
	d.calls = nil
}

func newTestPool(t *testing.T, capacity int) (*Pool, *recordingDriver) {
	t.Helper()
	d := &recordingDriver{}
	p, err := NewPool(capacity, d)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p, d
}

func mustAllocate(t *testing.T, p *Pool, pin PinID, persistence Persistence) Handle {
	t.Helper()
	h, err := p.Allocate(pin, persistence)
	if err != nil {
		t.Fatalf("Allocate(%d, %s) failed: %v", pin, persistence, err)
	}
	return h
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool(0, &recordingDriver{}); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter for capacity 0, got %v", err)
	}
	if _, err := NewPool(3, nil); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter for nil driver, got %v", err)
	}
	p, _ := newTestPool(t, 3)
	if p.Capacity() != 3 {
		t.Errorf("Expected capacity 3, got %d", p.Capacity())
	}
	if p.LastUsed() != -1 {
		t.Errorf("Expected lastUsed -1, got %d", p.LastUsed())
	}
	if p.PeriodUs() != 0 {
		t.Errorf("Expected unset period, got %d", p.PeriodUs())
	}
}

func TestAllocateFillsEmptySlotsFirst(t *testing.T) {
	const n = 4
	p, d := newTestPool(t, n)
	for i := 0; i < n; i++ {
		h := mustAllocate(t, p, PinID(10+i), Persistent)
		if h.Slot() != i {
			t.Errorf("Expected slot %d, got %d", i, h.Slot())
		}
		if p.LastUsed() != i {
			t.Errorf("Expected lastUsed %d, got %d", i, p.LastUsed())
		}
	}
	expectedCalls := []string{
		"redirect 0 10", "duty 0 0",
		"redirect 1 11", "duty 1 0",
		"redirect 2 12", "duty 2 0",
		"redirect 3 13", "duty 3 0",
	}
	if !reflect.DeepEqual(d.calls, expectedCalls) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}

	before := p.Snapshot()
	d.reset()
	if _, err := p.Allocate(99, Transient); !IsNoChannelsAvailable(err) {
		t.Fatalf("Expected no channels available, got %v", err)
	}
	if !reflect.DeepEqual(before, p.Snapshot()) {
		t.Error("Pool must be unmodified after a failed allocation")
	}
	if len(d.calls) != 0 {
		t.Errorf("Expected no driver calls, got %v", d.calls)
	}
}

func TestAllocateInvalidArguments(t *testing.T) {
	p, _ := newTestPool(t, 2)
	if _, err := p.Allocate(-1, Transient); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter for negative pin, got %v", err)
	}
	if _, err := p.Allocate(1, Persistence(7)); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter for unknown persistence, got %v", err)
	}
	mustAllocate(t, p, 1, Transient)
	if _, err := p.Allocate(1, Persistent); !IsPinInUse(err) {
		t.Errorf("Expected pin in use, got %v", err)
	}
}

func TestAllocatePinOfReclaimableChannel(t *testing.T) {
	p, _ := newTestPool(t, 1)
	h := mustAllocate(t, p, 1, Transient)
	// The only channel is transient, but it drives the requested pin
	if _, err := p.Allocate(1, Transient); !IsPinInUse(err) {
		t.Errorf("Expected pin in use, got %v", err)
	}
	if pin, err := p.Pin(h); err != nil || pin != 1 {
		t.Errorf("Expected channel to keep pin 1, got %d (%v)", pin, err)
	}
}

func TestWriteAndDutyRawUnits(t *testing.T) {
	p, d := newTestPool(t, 1)
	h := mustAllocate(t, p, 3, Persistent)

	tests := []struct {
		ratio    float64
		expected int
	}{
		{0, 0},
		{0.25, 256},
		{0.5, 512},
		{1, MaxOutput},
		{1.5, 1535},
	}
	for _, tc := range tests {
		d.reset()
		if err := p.Write(h, tc.ratio); err != nil {
			t.Fatalf("Write(%v) failed: %v", tc.ratio, err)
		}
		raw, err := p.DutyRawUnits(h)
		if err != nil {
			t.Fatalf("DutyRawUnits failed: %v", err)
		}
		if raw != tc.expected {
			t.Errorf("Write(%v): expected raw %d, got %d", tc.ratio, tc.expected, raw)
		}
		if raw != int(math.Round(tc.ratio*MaxOutput)) {
			t.Errorf("Write(%v): raw %d is not round(r * MaxOutput)", tc.ratio, raw)
		}
		expectedCalls := []string{fmt.Sprintf("duty 0 %v", tc.ratio)}
		if !reflect.DeepEqual(d.calls, expectedCalls) {
			t.Errorf("Unexpected driver calls: %v", d.calls)
		}
	}
}

func TestWriteRejectsNegativeRatio(t *testing.T) {
	p, d := newTestPool(t, 1)
	h := mustAllocate(t, p, 3, Persistent)
	if err := p.Write(h, 0.4); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	d.reset()
	for _, ratio := range []float64{-0.1, -1, math.Inf(-1), math.NaN()} {
		if err := p.Write(h, ratio); !IsInvalidParameter(err) {
			t.Errorf("Write(%v): expected invalid parameter, got %v", ratio, err)
		}
	}
	if duty, _ := p.Duty(h); duty != 0.4 {
		t.Errorf("Expected duty to stay 0.4, got %v", duty)
	}
	if len(d.calls) != 0 {
		t.Errorf("Expected no driver calls, got %v", d.calls)
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	p, d := newTestPool(t, 3)
	mustAllocate(t, p, 1, Persistent)
	h := mustAllocate(t, p, 2, Persistent)
	mustAllocate(t, p, 3, Persistent)

	d.reset()
	if err := p.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !reflect.DeepEqual(d.calls, []string{"disable 1"}) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}
	if p.Snapshot()[1].InUse {
		t.Error("Slot 1 must be free after release")
	}

	h2 := mustAllocate(t, p, 4, Persistent)
	if h2.Slot() != 1 {
		t.Errorf("Expected reuse of slot 1, got %d", h2.Slot())
	}
	if h2 == h {
		t.Error("Handle of reused slot must differ from released handle")
	}

	// The released handle must not alias the new owner
	if _, err := p.Pin(h); !IsStaleHandle(err) {
		t.Errorf("Expected stale handle, got %v", err)
	}
	if err := p.Write(h, 0.5); !IsStaleHandle(err) {
		t.Errorf("Expected stale handle, got %v", err)
	}
	if err := p.Release(h); !IsStaleHandle(err) {
		t.Errorf("Expected stale handle, got %v", err)
	}
	if pin, _ := p.Pin(h2); pin != 4 {
		t.Errorf("Expected pin 4, got %d", pin)
	}
}

func TestReclaimOnlyTransient(t *testing.T) {
	p, _ := newTestPool(t, 3)
	mustAllocate(t, p, 1, Persistent)
	mustAllocate(t, p, 2, Transient)
	mustAllocate(t, p, 3, Persistent)
	p.lastUsed = 0

	h := mustAllocate(t, p, 9, Persistent)
	if h.Slot() != 1 {
		t.Fatalf("Expected reclaim of slot 1, got %d", h.Slot())
	}
	if pin, _ := p.Pin(h); pin != 9 {
		t.Errorf("Expected pin 9, got %d", pin)
	}
	if pers, _ := p.Persistence(h); pers != Persistent {
		t.Errorf("Expected persistent, got %s", pers)
	}
	if _, err := p.Allocate(10, Transient); !IsNoChannelsAvailable(err) {
		t.Errorf("Expected no channels available, got %v", err)
	}
}

func TestReclaimKeepsDutyAndHandle(t *testing.T) {
	p, d := newTestPool(t, 1)
	old := mustAllocate(t, p, 1, Transient)
	if err := p.Write(old, 0.75); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	d.reset()
	h := mustAllocate(t, p, 2, Transient)
	if h != old {
		t.Errorf("Expected reclaimed handle %s, got %s", old, h)
	}
	if !reflect.DeepEqual(d.calls, []string{"redirect 0 2"}) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}
	if duty, _ := p.Duty(h); duty != 0.75 {
		t.Errorf("Expected inherited duty 0.75, got %v", duty)
	}
	// The previous owner detects the move by polling the pin
	if pin, err := p.Pin(old); err != nil || pin != 2 {
		t.Errorf("Expected previous owner to see pin 2, got %d (%v)", pin, err)
	}
}

func TestCapacityOne(t *testing.T) {
	p, _ := newTestPool(t, 1)
	h := mustAllocate(t, p, 1, Persistent)
	for i := 0; i < 3; i++ {
		if _, err := p.Allocate(PinID(2+i), Transient); !IsNoChannelsAvailable(err) {
			t.Errorf("Expected no channels available, got %v", err)
		}
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	h2 := mustAllocate(t, p, 5, Persistent)
	if h2.Slot() != h.Slot() {
		t.Errorf("Expected slot %d, got %d", h.Slot(), h2.Slot())
	}
}

func TestRoundRobinStartsAfterLastReclaim(t *testing.T) {
	p, _ := newTestPool(t, 3)
	mustAllocate(t, p, 1, Transient)
	mustAllocate(t, p, 2, Transient)
	mustAllocate(t, p, 3, Transient)

	// lastUsed is 2 after filling the pool
	expectedSlots := []int{0, 1, 2, 0, 1}
	for i, expected := range expectedSlots {
		h := mustAllocate(t, p, PinID(10+i), Transient)
		if h.Slot() != expected {
			t.Errorf("Allocation %d: expected slot %d, got %d", i, expected, h.Slot())
		}
		if p.LastUsed() != expected {
			t.Errorf("Allocation %d: expected lastUsed %d, got %d", i, expected, p.LastUsed())
		}
	}
}

func TestRoundRobinSkipsPersistent(t *testing.T) {
	p, _ := newTestPool(t, 4)
	mustAllocate(t, p, 1, Transient)
	mustAllocate(t, p, 2, Persistent)
	mustAllocate(t, p, 3, Transient)
	mustAllocate(t, p, 4, Persistent)
	p.lastUsed = 1

	h := mustAllocate(t, p, 5, Transient)
	if h.Slot() != 2 {
		t.Errorf("Expected slot 2, got %d", h.Slot())
	}
	h = mustAllocate(t, p, 6, Transient)
	if h.Slot() != 0 {
		t.Errorf("Expected slot 0 after wrap around, got %d", h.Slot())
	}
}

func TestReclaimFallsBackToLastUsed(t *testing.T) {
	p, d := newTestPool(t, 3)
	mustAllocate(t, p, 1, Persistent)
	mustAllocate(t, p, 2, Persistent)
	last := mustAllocate(t, p, 3, Transient)

	d.reset()
	h := mustAllocate(t, p, 4, Persistent)
	if h != last {
		t.Errorf("Expected reclaim of last used slot %s, got %s", last, h)
	}
	if !reflect.DeepEqual(d.calls, []string{"redirect 2 4"}) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}
	if _, err := p.Allocate(5, Transient); !IsNoChannelsAvailable(err) {
		t.Errorf("Expected no channels available, got %v", err)
	}
}

func TestRedirect(t *testing.T) {
	p, d := newTestPool(t, 2)
	a := mustAllocate(t, p, 1, Persistent)
	b := mustAllocate(t, p, 2, Persistent)

	d.reset()
	if err := p.Redirect(a, 7); err != nil {
		t.Fatalf("Redirect failed: %v", err)
	}
	if !reflect.DeepEqual(d.calls, []string{"redirect 0 7"}) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}
	if pin, _ := p.Pin(a); pin != 7 {
		t.Errorf("Expected pin 7, got %d", pin)
	}
	if err := p.Redirect(a, 7); err != nil {
		t.Errorf("Redirect to own pin must succeed, got %v", err)
	}
	if err := p.Redirect(a, 2); !IsPinInUse(err) {
		t.Errorf("Expected pin in use, got %v", err)
	}
	if err := p.Redirect(b, -3); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter, got %v", err)
	}
	// Pin 1 is free again
	if _, err := p.Allocate(1, Transient); !IsNoChannelsAvailable(err) {
		t.Errorf("Expected no channels available, got %v", err)
	}
}

func TestSetPeriodUs(t *testing.T) {
	p, d := newTestPool(t, 2)
	a := mustAllocate(t, p, 1, Persistent)
	b := mustAllocate(t, p, 2, Persistent)
	if err := p.Write(a, 0.25); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := p.Write(b, 0.5); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	d.reset()
	if err := p.SetPeriodUs(b, 20000); err != nil {
		t.Fatalf("SetPeriodUs failed: %v", err)
	}
	if p.PeriodUs() != 20000 {
		t.Errorf("Expected period 20000, got %d", p.PeriodUs())
	}
	// Only the calling channel gets its duty re-applied
	expectedCalls := []string{"period 1 20000", "duty 1 0.5"}
	if !reflect.DeepEqual(d.calls, expectedCalls) {
		t.Errorf("Unexpected driver calls: %v", d.calls)
	}

	d.reset()
	if err := p.SetPeriodUs(a, -1); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter, got %v", err)
	}
	if p.PeriodUs() != 20000 {
		t.Errorf("Expected period to stay 20000, got %d", p.PeriodUs())
	}
	if len(d.calls) != 0 {
		t.Errorf("Expected no driver calls, got %v", d.calls)
	}

	if err := p.SetPeriodUs(a, 0); err != nil {
		t.Errorf("SetPeriodUs(0) failed: %v", err)
	}
	if p.PeriodUs() != 0 {
		t.Errorf("Expected period 0, got %d", p.PeriodUs())
	}
}

func TestPeriodMilliseconds(t *testing.T) {
	p, _ := newTestPool(t, 1)
	h := mustAllocate(t, p, 1, Transient)
	if err := p.SetPeriod(h, 20); err != nil {
		t.Fatalf("SetPeriod failed: %v", err)
	}
	if p.PeriodUs() != 20000 {
		t.Errorf("Expected 20000us, got %d", p.PeriodUs())
	}
	if p.Period() != 20 {
		t.Errorf("Expected 20ms, got %d", p.Period())
	}
	if err := p.SetPeriodUs(h, 1500); err != nil {
		t.Fatalf("SetPeriodUs failed: %v", err)
	}
	if p.Period() != 1 {
		t.Errorf("Expected truncated 1ms, got %d", p.Period())
	}
	if err := p.SetPeriod(h, -2); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter, got %v", err)
	}
	for _, ms := range []int{math.MaxInt, math.MaxInt/1000 + 1, math.MinInt} {
		if err := p.SetPeriod(h, ms); !IsInvalidParameter(err) {
			t.Errorf("SetPeriod(%d): expected invalid parameter, got %v", ms, err)
		}
	}
	if p.PeriodUs() != 1500 {
		t.Errorf("Expected period unchanged at 1500us, got %d", p.PeriodUs())
	}
}

func TestHandleValidation(t *testing.T) {
	p, _ := newTestPool(t, 2)
	if _, err := p.Pin(Handle{}); !IsStaleHandle(err) {
		t.Errorf("Expected stale handle for zero handle, got %v", err)
	}
	if _, err := p.Pin(Handle{slot: 5, generation: 1}); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter for out of range slot, got %v", err)
	}
	if _, err := p.Info(Handle{slot: 1, generation: 1}); !IsStaleHandle(err) {
		t.Errorf("Expected stale handle for empty slot, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	p, _ := newTestPool(t, 3)
	h := mustAllocate(t, p, 4, Persistent)
	if err := p.Write(h, 0.1); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	snap := p.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(snap))
	}
	expected := SlotInfo{Slot: 0, InUse: true, Handle: h, Pin: 4, Duty: 0.1, Persistence: Persistent}
	if snap[0] != expected {
		t.Errorf("Unexpected slot 0: %+v", snap[0])
	}
	if snap[1] != (SlotInfo{Slot: 1}) || snap[2] != (SlotInfo{Slot: 2}) {
		t.Errorf("Expected empty slots, got %+v %+v", snap[1], snap[2])
	}
	info, err := p.Info(h)
	if err != nil || info != expected {
		t.Errorf("Unexpected info %+v (%v)", info, err)
	}
}
