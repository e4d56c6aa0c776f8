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

package mqtt

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// QosAtMostOnce represents "QoS 0: At most once delivery".
	QosAtMostOnce = byte(0)
	// QosAtLeastOnce represents "QoS 1: At least once delivery".
	QosAtLeastOnce = byte(1)
	// QosExactlyOnce represents "QoS 2: Exactly once delivery".
	QosExactlyOnce = byte(2)

	connectTimeout    = time.Second * 5
	disconnectQuiesce = 250 // ms
)

var maskAny = errors.WithStack

type Config struct {
	Host     string
	Port     int
	UserName string
	Password string
	ClientID string
}

// Service contains the API exposed by the MQTT service.
type Service interface {
	// Close the service
	Close() error
	// Publish a JSON encoded message into a topic.
	Publish(ctx context.Context, msg interface{}, topic string, qos byte, retained bool) error
}

type service struct {
	Config
	log       zerolog.Logger
	mutex     sync.Mutex
	client    paho.Client
	connected bool
}

// NewService instantiates a new MQTT service.
// The connection is opened on the first publish.
func NewService(config Config, log zerolog.Logger) (Service, error) {
	if config.Host == "" {
		return nil, errors.New("mqtt host missing")
	}
	if config.Port == 0 {
		config.Port = 1883
	}
	log = log.With().Str("component", "mqtt").Logger()
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + net.JoinHostPort(config.Host, strconv.Itoa(config.Port))).
		SetClientID(config.ClientID).
		SetUsername(config.UserName).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(10 * time.Second).
		SetPingTimeout(2 * time.Second).
		SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	return &service{
		Config: config,
		log:    log,
		client: paho.NewClient(opts),
	}, nil
}

// Close the service
func (s *service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.connected {
		s.client.Disconnect(disconnectQuiesce)
		s.connected = false
	}
	return nil
}

// connect opens a connection.
func (s *service) connect(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.connected {
		return nil
	}
	if err := waitToken(ctx, s.client.Connect()); err != nil {
		return errors.Wrap(err, "failed to connect to mqtt")
	}
	s.log.Info().Str("host", s.Host).Int("port", s.Port).Msg("Connected to MQTT broker")
	s.connected = true
	return nil
}

// Publish a JSON encoded message into a topic.
func (s *service) Publish(ctx context.Context, msg interface{}, topic string, qos byte, retained bool) error {
	encodedMsg, err := json.Marshal(msg)
	if err != nil {
		return maskAny(err)
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := waitToken(ctx, s.client.Publish(topic, qos, retained, encodedMsg)); err != nil {
		return errors.Wrapf(err, "failed to publish to '%s'", topic)
	}
	return nil
}

// waitToken waits until the given token completes or the context is canceled.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return maskAny(token.Error())
	case <-ctx.Done():
		return ctx.Err()
	}
}
