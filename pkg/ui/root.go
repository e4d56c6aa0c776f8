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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/binkynet/PwmPool/pkg/pwm"
	"github.com/binkynet/PwmPool/pkg/service"
)

// Root is the model of an SSH console session.
type Root struct {
	svc    Service
	events <-chan service.Event
	term   string
	width  int
	height int

	status *service.PoolStatus
	err    error
	recent []service.Event
	log    viewport.Model
}

var _ tea.Model = Root{}

const (
	maxRecentEvents = 100
	refreshInterval = time.Second * 2
	refreshTimeout  = time.Second
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	persistentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	freeStyle       = lipgloss.NewStyle().Faint(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle       = lipgloss.NewStyle().Faint(true)
)

func newRoot(svc Service, events <-chan service.Event, term string, width, height int) Root {
	r := Root{
		svc:    svc,
		events: events,
		term:   term,
		width:  width,
		height: height,
		log:    viewport.New(width, 0),
	}
	r.log.SetContent("")
	return r
}

// Init is the first function that will be called. It returns an optional
// initial command. To not perform an initial command return nil.
func (r Root) Init() tea.Cmd {
	return tea.Batch(r.doRefresh(), r.doWaitForEvent(), doTick())
}

// Update is called when a message is received. Use it to inspect messages
// and, in response, update the model and/or send a command.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case statusMsg:
		r.err = msg.err
		if msg.err == nil {
			st := msg.status
			r.status = &st
		}
		r = r.layout()
	case eventMsg:
		r.recent = append([]service.Event{service.Event(msg)}, r.recent...)
		if len(r.recent) > maxRecentEvents {
			r.recent = r.recent[:maxRecentEvents]
		}
		r.log.SetContent(r.eventsView())
		cmds = append(cmds, r.doRefresh(), r.doWaitForEvent())
	case tickMsg:
		r.log.SetContent(r.eventsView())
		cmds = append(cmds, r.doRefresh(), doTick())
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		r = r.layout()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return r, tea.Quit
		case "c":
			r.recent = nil
			r.log.SetContent("")
		}
	}

	// Handle keyboard and mouse events in the event log
	var cmd tea.Cmd
	r.log, cmd = r.log.Update(msg)
	cmds = append(cmds, cmd)

	return r, tea.Batch(cmds...)
}

// View renders the program's UI, which is just a string. The view is
// rendered after every Update.
func (r Root) View() string {
	var sb strings.Builder
	sb.WriteString(r.headerView())
	sb.WriteString(r.slotsView())
	sb.WriteString(headerStyle.Render("Recent events") + "\n")
	sb.WriteString(r.log.View() + "\n")
	sb.WriteString(helpStyle.Render("c - Clear events  q - Disconnect"))
	return sb.String()
}

func (r Root) headerView() string {
	s := titleStyle.Render("PWM channel pool") + "\n"
	if r.err != nil {
		s += errorStyle.Render(r.err.Error()) + "\n"
	}
	if st := r.status; st != nil {
		s += fmt.Sprintf("Driver: %s  Pins: %d  In use: %d/%d  Persistent: %d  Last used: %s\n",
			st.Driver, st.PinCount, st.InUse, st.Capacity, st.Persistent, formatSlot(st.LastUsed))
		s += fmt.Sprintf("Period: %s\n", formatPeriod(st.PeriodUs))
	}
	return s + "\n"
}

func (r Root) slotsView() string {
	st := r.status
	if st == nil {
		return "Loading...\n\n"
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-5s %-10s %-5s %-7s %-6s %-11s", "Slot", "Handle", "Pin", "Duty", "Raw", "Persistence")) + "\n")
	for _, x := range st.Slots {
		if !x.InUse {
			sb.WriteString(freeStyle.Render(fmt.Sprintf("%-5d %-10s", x.Slot, "free")) + "\n")
			continue
		}
		line := fmt.Sprintf("%-5d %-10s %-5d %-7.3f %-6d %-11s",
			x.Slot, x.Handle, x.Pin, x.Duty, rawUnits(x.Duty), x.Persistence)
		if x.Persistence == pwm.Persistent {
			line = persistentStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String() + "\n"
}

func (r Root) eventsView() string {
	lines := make([]string, 0, len(r.recent))
	for _, e := range r.recent {
		lines = append(lines, formatEvent(e))
	}
	return strings.Join(lines, "\n")
}

// layout resizes the event log to the space left below the slot table.
func (r Root) layout() Root {
	used := lipgloss.Height(r.headerView()) + lipgloss.Height(r.slotsView()) + 2
	r.log.Width = r.width
	r.log.Height = max(r.height-used, 3)
	return r
}

func formatSlot(slot int) string {
	if slot < 0 {
		return "none"
	}
	return fmt.Sprint(slot)
}

func formatPeriod(periodUs int) string {
	if periodUs <= 0 {
		return "not set"
	}
	return fmt.Sprintf("%sµs (%s)", humanize.Comma(int64(periodUs)),
		humanize.SIWithDigits(1000000/float64(periodUs), 2, "Hz"))
}

func formatEvent(e service.Event) string {
	s := fmt.Sprintf("%-10s %-6s pin %d", e.Kind, e.Handle, e.Pin)
	switch {
	case e.HasPreviousPin():
		s += fmt.Sprintf(" (was %d)", e.PreviousPin)
	case e.Kind == service.EventWritten:
		s += fmt.Sprintf(" duty %.3f", e.Duty)
	case e.Kind == service.EventPeriod:
		s += " period " + formatPeriod(e.PeriodUs)
	}
	return s + "  " + humanize.Time(e.Time)
}

func rawUnits(duty float64) int {
	return int(math.Round(duty * pwm.MaxOutput))
}

type statusMsg struct {
	status service.PoolStatus
	err    error
}

type eventMsg service.Event

type tickMsg time.Time

func (r Root) doRefresh() tea.Cmd {
	svc := r.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		st, err := svc.Snapshot(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (r Root) doWaitForEvent() tea.Cmd {
	events := r.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func doTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
