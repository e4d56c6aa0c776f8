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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/rs/zerolog"

	"github.com/binkynet/PwmPool/pkg/service"
)

// Service is the part of the pool service used by the console.
type Service interface {
	Snapshot(ctx context.Context) (service.PoolStatus, error)
	Subscribe(cb func(service.Event)) context.CancelFunc
}

// UI creates console sessions.
type UI struct {
	svc Service
	log zerolog.Logger
}

const (
	sessionEventBuffer = 64
)

// New creates a console for the given service.
func New(svc Service, log zerolog.Logger) *UI {
	return &UI{
		svc: svc,
		log: log.With().Str("component", "ui").Logger(),
	}
}

// Handler creates a model for an incoming ssh.Session.
// The session receives pool events until it ends.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := s.Pty()
	events := make(chan service.Event, sessionEventBuffer)
	cancel := u.svc.Subscribe(func(e service.Event) {
		select {
		case events <- e:
		default:
			// Slow session, drop event
		}
	})
	go func() {
		<-s.Context().Done()
		cancel()
	}()
	u.log.Debug().Str("user", s.User()).Str("term", pty.Term).Msg("Console session started")
	return newRoot(u.svc, events, pty.Term, pty.Window.Width, pty.Window.Height), []tea.ProgramOption{tea.WithAltScreen()}
}
