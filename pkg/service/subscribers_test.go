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
	"testing"
)

func TestSubscribersDeliverInSequence(t *testing.T) {
	subs := newSubscribers()
	var got []uint64
	cancel := subs.add(func(e Event) { got = append(got, e.Seq) })
	defer cancel()

	for _, seq := range []uint64{2, 3, 1, 5, 4} {
		subs.dispatch(Event{Seq: seq})
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 events, got %v", got)
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Errorf("expected events in sequence, got %v", got)
			break
		}
	}

	// Late duplicates are dropped
	subs.dispatch(Event{Seq: 3})
	if len(got) != 5 {
		t.Errorf("expected duplicate to be dropped, got %v", got)
	}
}

func TestSubscribersCancelRemovesOnlyOwnCallback(t *testing.T) {
	subs := newSubscribers()
	var a, b int
	cancelA := subs.add(func(Event) { a++ })
	cancelB := subs.add(func(Event) { b++ })

	subs.dispatch(Event{Seq: 1})
	cancelB()
	subs.dispatch(Event{Seq: 2})
	cancelA()
	subs.dispatch(Event{Seq: 3})

	if a != 2 || b != 1 {
		t.Errorf("expected a=2 b=1, got a=%d b=%d", a, b)
	}
}
