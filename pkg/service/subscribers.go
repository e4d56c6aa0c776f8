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
	"sync"
)

// subscribers fans pool events out to the callbacks registered with Subscribe.
// The pubsub delivers each event on its own goroutine, so events are
// buffered until all events with a lower sequence number have been
// delivered.
type subscribers struct {
	mutex   sync.Mutex
	lastID  int
	cbs     map[int]func(Event)
	nextSeq uint64
	pending map[uint64]Event
}

func newSubscribers() *subscribers {
	return &subscribers{
		cbs:     make(map[int]func(Event)),
		nextSeq: 1,
		pending: make(map[uint64]Event),
	}
}

// add registers the given callback and returns a function that removes it.
func (s *subscribers) add(cb func(Event)) context.CancelFunc {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastID++
	id := s.lastID
	s.cbs[id] = cb
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.cbs, id)
	}
}

// dispatch is the single pubsub subscriber of the service.
// Callbacks are invoked with the lock held, in sequence order.
func (s *subscribers) dispatch(e Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e.Seq < s.nextSeq {
		return
	}
	s.pending[e.Seq] = e
	for {
		next, found := s.pending[s.nextSeq]
		if !found {
			return
		}
		delete(s.pending, s.nextSeq)
		s.nextSeq++
		for _, cb := range s.cbs {
			cb(next)
		}
	}
}
