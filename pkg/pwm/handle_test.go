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
	"encoding/json"
	"testing"
)

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("3.17")
	if err != nil {
		t.Fatalf("ParseHandle failed: %v", err)
	}
	if h.Slot() != 3 || h.Generation() != 17 {
		t.Errorf("Unexpected handle %+v", h)
	}
	if h.String() != "3.17" {
		t.Errorf("Expected 3.17, got %s", h.String())
	}
	for _, s := range []string{"", "3", "a.1", "1.b", "-1.1", "1.0", "1.4294967296"} {
		if _, err := ParseHandle(s); !IsInvalidParameter(err) {
			t.Errorf("ParseHandle(%q): expected invalid parameter, got %v", s, err)
		}
	}
}

func TestSlotInfoJSON(t *testing.T) {
	info := SlotInfo{Slot: 2, InUse: true, Handle: Handle{slot: 2, generation: 4}, Pin: 5, Duty: 0.5, Persistence: Persistent}
	encoded, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	expected := `{"slot":2,"in_use":true,"handle":"2.4","pin":5,"duty":0.5,"persistence":"persistent"}`
	if string(encoded) != expected {
		t.Errorf("Expected %s, got %s", expected, encoded)
	}
	empty, err := json.Marshal(SlotInfo{Slot: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	expected = `{"slot":1,"in_use":false,"handle":"","pin":0,"duty":0,"persistence":"transient"}`
	if string(empty) != expected {
		t.Errorf("Expected %s, got %s", expected, empty)
	}
}

func TestParsePersistence(t *testing.T) {
	if p, err := ParsePersistence(" Persistent "); err != nil || p != Persistent {
		t.Errorf("Expected persistent, got %s (%v)", p, err)
	}
	if p, err := ParsePersistence("transient"); err != nil || p != Transient {
		t.Errorf("Expected transient, got %s (%v)", p, err)
	}
	if _, err := ParsePersistence("forever"); !IsInvalidParameter(err) {
		t.Errorf("Expected invalid parameter, got %v", err)
	}
}
