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

package publisher

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PwmPool/pkg/metrics"
	"github.com/binkynet/PwmPool/pkg/mqtt"
	"github.com/binkynet/PwmPool/pkg/service"
	"github.com/binkynet/PwmPool/pkg/service/util"
)

// Source is the part of the pool service the publisher reads from.
type Source interface {
	Snapshot(ctx context.Context) (service.PoolStatus, error)
	Subscribe(cb func(service.Event)) context.CancelFunc
}

// Publisher publishes the pool status to an MQTT broker.
// The status is retained on <prefix>/pool, events go to <prefix>/events.
type Publisher struct {
	log         zerolog.Logger
	source      Source
	client      mqtt.Service
	topicPrefix string
	dirty       chan struct{}
	events      chan service.Event
}

const (
	eventQueueSize = 64
	publishTimeout = time.Second * 5
)

var (
	// Total number of published messages by topic
	publishedTotal = metrics.MustRegisterCounterVec("publisher",
		"messages_total",
		"Total number of published MQTT messages by topic",
		"topic")
	// Total number of dropped events
	droppedEventsTotal = metrics.MustRegisterCounter("publisher",
		"dropped_events_total",
		"Total number of events dropped because the queue was full")
)

// New creates a publisher.
func New(log zerolog.Logger, source Source, client mqtt.Service, topicPrefix string) *Publisher {
	return &Publisher{
		log:         log.With().Str("component", "publisher").Logger(),
		source:      source,
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		dirty:       make(chan struct{}, 1),
		events:      make(chan service.Event, eventQueueSize),
	}
}

// PoolTopic returns the topic of the retained pool status.
func (p *Publisher) PoolTopic() string { return p.topicPrefix + "/pool" }

// EventsTopic returns the topic of pool events.
func (p *Publisher) EventsTopic() string { return p.topicPrefix + "/events" }

// Run publishes until the given context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	cancel := p.source.Subscribe(func(e service.Event) {
		select {
		case p.events <- e:
		default:
			droppedEventsTotal.Inc()
		}
		p.markDirty()
	})
	defer cancel()

	// Publish initial status
	p.markDirty()
	return util.UntilCanceled(ctx, p.log, "publishPoolStatus", func() error {
		return p.publishOnce(ctx)
	})
}

// publishOnce waits for a change and publishes it.
func (p *Publisher) publishOnce(ctx context.Context) error {
	select {
	case e := <-p.events:
		if err := p.publish(ctx, e, p.EventsTopic(), false); err != nil {
			return err
		}
	case <-p.dirty:
		st, err := p.snapshot(ctx)
		if err == nil {
			err = p.publish(ctx, st, p.PoolTopic(), true)
		}
		if err != nil {
			// Try again later
			p.markDirty()
			return err
		}
	case <-ctx.Done():
	}
	return nil
}

func (p *Publisher) snapshot(ctx context.Context) (service.PoolStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	st, err := p.source.Snapshot(ctx)
	if err != nil {
		return service.PoolStatus{}, errors.Wrap(err, "Snapshot failed")
	}
	return st, nil
}

func (p *Publisher) publish(ctx context.Context, msg interface{}, topic string, retained bool) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, msg, topic, mqtt.QosAtLeastOnce, retained); err != nil {
		return err
	}
	publishedTotal.WithLabelValues(topic).Inc()
	return nil
}

func (p *Publisher) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
		// Already dirty
	}
}
