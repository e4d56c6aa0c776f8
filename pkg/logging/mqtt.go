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

package logging

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/binkynet/PwmPool/pkg/mqtt"
)

// MQTTWriter forwards log lines to an MQTT topic.
// Lines written before a destination is set and enabled are kept in a
// bounded backlog; the oldest lines are dropped first.
type MQTTWriter interface {
	io.Writer
	Enable(enable bool)
	SetDestination(topic string, mqttService mqtt.Service)
}

// logDestination is where log lines are published.
type logDestination struct {
	topic  string
	client mqtt.Service
}

type mqttLogWriter struct {
	mutex   sync.Mutex
	dest    logDestination
	enabled bool
	backlog chan []byte
	changed chan struct{}
}

const (
	logBacklogSize    = 512
	logPublishTimeout = time.Second
)

type logMsg struct {
	Message string `json:"message"`
}

// NewMQTTWriter creates a new MQTT output for logs.
// Forwarding stops when the given context is canceled.
func NewMQTTWriter(ctx context.Context) MQTTWriter {
	w := &mqttLogWriter{
		backlog: make(chan []byte, logBacklogSize),
		changed: make(chan struct{}, 1),
	}
	go w.forward(ctx)
	return w
}

// Write queues a copy of the given log line.
func (w *mqttLogWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		line := append([]byte(nil), p...)
		for attempt := 0; attempt < 3 && !w.tryQueue(line); attempt++ {
			w.dropOldest()
		}
	}
	return len(p), nil
}

func (w *mqttLogWriter) tryQueue(line []byte) bool {
	select {
	case w.backlog <- line:
		return true
	default:
		return false
	}
}

func (w *mqttLogWriter) dropOldest() {
	select {
	case <-w.backlog:
	default:
	}
}

// Enable or disable forwarding.
func (w *mqttLogWriter) Enable(enable bool) {
	w.mutex.Lock()
	w.enabled = enable
	w.mutex.Unlock()
	w.notify()
}

// SetDestination sets the topic and client used for forwarding.
func (w *mqttLogWriter) SetDestination(topic string, mqttService mqtt.Service) {
	w.mutex.Lock()
	w.dest = logDestination{topic: topic, client: mqttService}
	w.mutex.Unlock()
	w.notify()
}

func (w *mqttLogWriter) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// active returns the destination, ok is false while forwarding is off.
func (w *mqttLogWriter) active() (dest logDestination, ok bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.dest, w.enabled && w.dest.topic != "" && w.dest.client != nil
}

// forward publishes queued lines while a destination is active.
func (w *mqttLogWriter) forward(ctx context.Context) {
	for {
		dest, ok := w.active()
		if !ok {
			select {
			case <-w.changed:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case line := <-w.backlog:
			pubCtx, cancel := context.WithTimeout(ctx, logPublishTimeout)
			// Failures are not logged, that would feed back into this writer
			dest.client.Publish(pubCtx, logMsg{Message: string(line)}, dest.topic, mqtt.QosAtMostOnce, false)
			cancel()
		case <-w.changed:
		case <-ctx.Done():
			return
		}
	}
}
