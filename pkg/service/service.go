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
	"context"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/PwmPool/pkg/pwm"
	"github.com/binkynet/PwmPool/pkg/service/bridge"
	"github.com/binkynet/PwmPool/pkg/service/devices"
)

// Service owns a single pwm.Pool. All operations are executed by the
// request loop started with Run, one at a time.
type Service interface {
	// Run the request loop until the given context is cancelled.
	Run(ctx context.Context) error

	// Allocate a channel driving the given pin.
	Allocate(ctx context.Context, pin pwm.PinID, persistence pwm.Persistence) (pwm.Handle, error)
	// Release the channel of the given handle.
	Release(ctx context.Context, h pwm.Handle) error
	// Write the duty ratio of the channel of the given handle.
	Write(ctx context.Context, h pwm.Handle, ratio float64) error
	// Redirect the channel of the given handle to another pin.
	Redirect(ctx context.Context, h pwm.Handle, pin pwm.PinID) error
	// Channel returns the state of the channel of the given handle.
	Channel(ctx context.Context, h pwm.Handle) (ChannelInfo, error)
	// PeriodUs returns the shared period in microseconds.
	PeriodUs(ctx context.Context) (int, error)
	// SetPeriodUs sets the shared period through the channel of the given handle.
	SetPeriodUs(ctx context.Context, h pwm.Handle, periodUs int) error
	// SetPeriod sets the shared period in milliseconds.
	SetPeriod(ctx context.Context, h pwm.Handle, periodMs int) error
	// Snapshot returns the state of the entire pool.
	Snapshot(ctx context.Context) (PoolStatus, error)

	// Subscribe to pool events. Call the returned function to unsubscribe.
	// Events are delivered in the order they happened. The callback must
	// not block and must not unsubscribe from within itself.
	Subscribe(cb func(Event)) context.CancelFunc
}

type Config struct {
	// Number of channels in the pool
	Capacity int
}

type Dependencies struct {
	Logger zerolog.Logger
	Driver devices.PWMDriver
	Bridge bridge.API
}

// ChannelInfo is the state of a single channel.
type ChannelInfo struct {
	pwm.SlotInfo
	DutyRawUnits int `json:"duty_raw_units"`
	PeriodUs     int `json:"period_us"`
}

// PoolStatus is the state of the entire pool.
type PoolStatus struct {
	Driver     string         `json:"driver"`
	Capacity   int            `json:"capacity"`
	PinCount   int            `json:"pin_count"`
	InUse      int            `json:"in_use"`
	Persistent int            `json:"persistent"`
	LastUsed   int            `json:"last_used"`
	PeriodUs   int            `json:"period_us"`
	Slots      []pwm.SlotInfo `json:"slots"`
}

type service struct {
	Config
	Dependencies

	pool        *pwm.Pool
	queue       chan func()
	events      *pubsub.PubSub
	subscribers *subscribers
	lastSeq     uint64 // sequence number of the last published event
}

const (
	closeTimeout = time.Second * 5
	exhaustBlink = time.Millisecond * 100
)

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	if deps.Driver == nil {
		return nil, errors.Wrap(pwm.ErrInvalidParameter, "driver missing")
	}
	pool, err := pwm.NewPool(conf.Capacity, deps.Driver)
	if err != nil {
		return nil, errors.Wrap(err, "NewPool failed")
	}
	s := &service{
		Config:       conf,
		Dependencies: deps,
		pool:         pool,
		queue:        make(chan func()),
		events:       pubsub.New(),
		subscribers:  newSubscribers(),
	}
	s.events.Sub(s.subscribers.dispatch)
	return s, nil
}

// Run the request loop until the given context is cancelled.
func (s *service) Run(ctx context.Context) error {
	log := s.Logger.With().
		Str("driver", s.Driver.Name()).
		Int("capacity", s.pool.Capacity()).
		Logger()

	if err := s.Driver.Configure(ctx); err != nil {
		s.setRedLED(true)
		return errors.Wrap(err, "Configure driver failed")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := s.Driver.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Close driver failed")
		}
		s.setGreenLED(false)
	}()

	s.setGreenLED(true)
	s.setRedLED(false)
	s.updateGauges()
	log.Info().Msg("PWM pool started")

	for {
		select {
		case req := <-s.queue:
			req()
		case <-ctx.Done():
			log.Info().Msg("PWM pool stopped")
			return nil
		}
	}
}

// do executes the given function in the request loop.
func (s *service) do(ctx context.Context, op string, fn func(p *pwm.Pool) error) error {
	start := time.Now()
	result := make(chan error, 1)
	req := func() {
		result <- fn(s.pool)
	}
	select {
	case s.queue <- req:
		// Request is on the queue
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once queued, the request always runs to completion
	err := <-result
	requestDuration.Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	return err
}

// Allocate a channel driving the given pin.
func (s *service) Allocate(ctx context.Context, pin pwm.PinID, persistence pwm.Persistence) (pwm.Handle, error) {
	if err := s.checkPin(pin); err != nil {
		return pwm.Handle{}, err
	}
	var h pwm.Handle
	err := s.do(ctx, "allocate", func(p *pwm.Pool) error {
		before := p.Snapshot()
		var err error
		h, err = p.Allocate(pin, persistence)
		if err != nil {
			if pwm.IsNoChannelsAvailable(err) {
				allocationsTotal.WithLabelValues("exhausted").Inc()
				s.blinkRedLED()
			} else {
				allocationsTotal.WithLabelValues("failed").Inc()
			}
			return err
		}
		s.setRedLED(false)
		evicted := before[h.Slot()]
		kind := EventAllocated
		if evicted.InUse {
			kind = EventReclaimed
			allocationsTotal.WithLabelValues("reclaimed").Inc()
			s.Logger.Debug().
				Str("handle", h.String()).
				Int("old-pin", int(evicted.Pin)).
				Int("pin", int(pin)).
				Msg("Reclaimed transient channel")
		} else {
			allocationsTotal.WithLabelValues("fresh").Inc()
		}
		s.publish(p, kind, h, func(e *Event) {
			if evicted.InUse {
				e.PreviousPin = evicted.Pin
			}
		})
		return nil
	})
	return h, err
}

// Release the channel of the given handle.
func (s *service) Release(ctx context.Context, h pwm.Handle) error {
	return s.do(ctx, "release", func(p *pwm.Pool) error {
		info, err := p.Info(h)
		if err != nil {
			return err
		}
		if err := p.Release(h); err != nil {
			return err
		}
		releasesTotal.Inc()
		s.publish(p, EventReleased, h, func(e *Event) {
			e.Pin = info.Pin
			e.Persistence = info.Persistence
		})
		return nil
	})
}

// Write the duty ratio of the channel of the given handle.
func (s *service) Write(ctx context.Context, h pwm.Handle, ratio float64) error {
	return s.do(ctx, "write", func(p *pwm.Pool) error {
		if err := p.Write(h, ratio); err != nil {
			return err
		}
		dutyWritesTotal.Inc()
		s.publish(p, EventWritten, h, nil)
		return nil
	})
}

// Redirect the channel of the given handle to another pin.
func (s *service) Redirect(ctx context.Context, h pwm.Handle, pin pwm.PinID) error {
	if err := s.checkPin(pin); err != nil {
		return err
	}
	return s.do(ctx, "redirect", func(p *pwm.Pool) error {
		old, err := p.Pin(h)
		if err != nil {
			return err
		}
		if err := p.Redirect(h, pin); err != nil {
			return err
		}
		s.publish(p, EventRedirected, h, func(e *Event) {
			e.PreviousPin = old
		})
		return nil
	})
}

// Channel returns the state of the channel of the given handle.
func (s *service) Channel(ctx context.Context, h pwm.Handle) (ChannelInfo, error) {
	var result ChannelInfo
	err := s.do(ctx, "channel", func(p *pwm.Pool) error {
		info, err := p.Info(h)
		if err != nil {
			return err
		}
		raw, err := p.DutyRawUnits(h)
		if err != nil {
			return err
		}
		result = ChannelInfo{
			SlotInfo:     info,
			DutyRawUnits: raw,
			PeriodUs:     p.PeriodUs(),
		}
		return nil
	})
	return result, err
}

// PeriodUs returns the shared period in microseconds.
func (s *service) PeriodUs(ctx context.Context) (int, error) {
	var result int
	err := s.do(ctx, "period", func(p *pwm.Pool) error {
		result = p.PeriodUs()
		return nil
	})
	return result, err
}

// SetPeriodUs sets the shared period through the channel of the given handle.
func (s *service) SetPeriodUs(ctx context.Context, h pwm.Handle, periodUs int) error {
	return s.do(ctx, "set-period", func(p *pwm.Pool) error {
		if err := p.SetPeriodUs(h, periodUs); err != nil {
			return err
		}
		s.publish(p, EventPeriod, h, nil)
		return nil
	})
}

// SetPeriod sets the shared period in milliseconds.
func (s *service) SetPeriod(ctx context.Context, h pwm.Handle, periodMs int) error {
	return s.do(ctx, "set-period", func(p *pwm.Pool) error {
		if err := p.SetPeriod(h, periodMs); err != nil {
			return err
		}
		s.publish(p, EventPeriod, h, nil)
		return nil
	})
}

// Snapshot returns the state of the entire pool.
func (s *service) Snapshot(ctx context.Context) (PoolStatus, error) {
	var result PoolStatus
	err := s.do(ctx, "snapshot", func(p *pwm.Pool) error {
		result = s.status(p)
		return nil
	})
	return result, err
}

// Subscribe to pool events.
func (s *service) Subscribe(cb func(Event)) context.CancelFunc {
	return s.subscribers.add(cb)
}

// checkPin verifies that the given pin exists on the driver.
func (s *service) checkPin(pin pwm.PinID) error {
	if pin < 0 || int(pin) >= s.Driver.PinCount() {
		return errors.Wrapf(pwm.ErrInvalidParameter, "pin %d outside [0, %d)", pin, s.Driver.PinCount())
	}
	return nil
}

// status builds the pool status.
// Called from the request loop only.
func (s *service) status(p *pwm.Pool) PoolStatus {
	slots := p.Snapshot()
	inUse := lo.Filter(slots, func(x pwm.SlotInfo, _ int) bool { return x.InUse })
	return PoolStatus{
		Driver:     s.Driver.Name(),
		Capacity:   p.Capacity(),
		PinCount:   s.Driver.PinCount(),
		InUse:      len(inUse),
		Persistent: lo.CountBy(inUse, func(x pwm.SlotInfo) bool { return x.Persistence == pwm.Persistent }),
		LastUsed:   p.LastUsed(),
		PeriodUs:   p.PeriodUs(),
		Slots:      slots,
	}
}

// publish an event about the channel of the given handle and update the gauges.
// Called from the request loop only.
func (s *service) publish(p *pwm.Pool, kind EventKind, h pwm.Handle, modify func(*Event)) {
	s.lastSeq++
	e := Event{
		Seq:      s.lastSeq,
		Kind:     kind,
		Time:     time.Now(),
		Handle:   h,
		PeriodUs: p.PeriodUs(),
	}
	if info, err := p.Info(h); err == nil {
		e.Pin = info.Pin
		e.Duty = info.Duty
		e.Persistence = info.Persistence
	}
	if modify != nil {
		modify(&e)
	}
	s.updateGauges()
	s.events.Pub(e)
}

// updateGauges sets the pool gauges.
// Called from the request loop only.
func (s *service) updateGauges() {
	st := s.status(s.pool)
	slotsInUseGauge.Set(float64(st.InUse))
	persistentSlotsGauge.Set(float64(st.Persistent))
	periodUsGauge.Set(float64(st.PeriodUs))
}

func (s *service) setGreenLED(on bool) {
	if s.Bridge != nil {
		if err := s.Bridge.SetGreenLED(on); err != nil {
			s.Logger.Debug().Err(err).Msg("SetGreenLED failed")
		}
	}
}

func (s *service) setRedLED(on bool) {
	if s.Bridge != nil {
		if err := s.Bridge.SetRedLED(on); err != nil {
			s.Logger.Debug().Err(err).Msg("SetRedLED failed")
		}
	}
}

func (s *service) blinkRedLED() {
	if s.Bridge != nil {
		if err := s.Bridge.BlinkRedLED(exhaustBlink); err != nil {
			s.Logger.Debug().Err(err).Msg("BlinkRedLED failed")
		}
	}
}
