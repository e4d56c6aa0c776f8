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

package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/binkynet/PwmPool/pkg/pwm"
	"github.com/binkynet/PwmPool/pkg/service"
)

type fakeService struct {
	status service.PoolStatus
}

func (f *fakeService) Snapshot(ctx context.Context) (service.PoolStatus, error) {
	return f.status, nil
}

func (f *fakeService) Subscribe(cb func(service.Event)) context.CancelFunc {
	return func() {}
}

func testStatus(t *testing.T) service.PoolStatus {
	h, err := pwm.ParseHandle("1.3")
	if err != nil {
		t.Fatalf("ParseHandle failed: %v", err)
	}
	return service.PoolStatus{
		Driver:     "virtual",
		Capacity:   2,
		PinCount:   16,
		InUse:      1,
		Persistent: 1,
		LastUsed:   -1,
		PeriodUs:   20000,
		Slots: []pwm.SlotInfo{
			{Slot: 0},
			{Slot: 1, InUse: true, Handle: h, Pin: 7, Duty: 0.5, Persistence: pwm.Persistent},
		},
	}
}

func TestRootView(t *testing.T) {
	svc := &fakeService{status: testStatus(t)}
	r := newRoot(svc, make(chan service.Event), "xterm", 100, 40)

	if !strings.Contains(r.View(), "Loading...") {
		t.Error("expected loading view before first status")
	}

	msg := r.doRefresh()()
	m, _ := r.Update(msg)
	view := m.View()
	for _, expected := range []string{
		"virtual",
		"In use: 1/2",
		"Last used: none",
		"20,000µs (50 Hz)",
		"1.3",
		"persistent",
		"free",
	} {
		if !strings.Contains(view, expected) {
			t.Errorf("expected view to contain %q:\n%s", expected, view)
		}
	}
}

func TestRootEvents(t *testing.T) {
	svc := &fakeService{status: testStatus(t)}
	events := make(chan service.Event, 1)
	r := newRoot(svc, events, "xterm", 100, 40)
	m, _ := r.Update(r.doRefresh()())

	h, _ := pwm.ParseHandle("1.3")
	events <- service.Event{
		Kind:        service.EventReclaimed,
		Time:        time.Now(),
		Handle:      h,
		Pin:         7,
		PreviousPin: 4,
	}
	msg := m.(Root).doWaitForEvent()()
	m, _ = m.Update(msg)
	if view := m.View(); !strings.Contains(view, "reclaimed") || !strings.Contains(view, "(was 4)") {
		t.Errorf("expected reclaimed event in view:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if len(m.(Root).recent) != 0 {
		t.Error("expected events to be cleared")
	}
}

func TestFormatPeriod(t *testing.T) {
	tests := map[int]string{
		0:     "not set",
		1000:  "1,000µs (1 kHz)",
		20000: "20,000µs (50 Hz)",
	}
	for us, expected := range tests {
		if got := formatPeriod(us); got != expected {
			t.Errorf("formatPeriod(%d): expected %q, got %q", us, expected, got)
		}
	}
}
