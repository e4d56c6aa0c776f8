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
	"strings"

	"github.com/pkg/errors"
)

// Persistence determines whether a channel may be reclaimed by a later
// allocation request.
type Persistence uint8

const (
	// Transient channels may be reassigned to a new owner at any time once
	// the pool has no empty slot left.
	Transient Persistence = iota
	// Persistent channels stay with their owner until released.
	// Should be reserved for system services.
	Persistent
)

// String returns a human readable form of the persistence.
func (p Persistence) String() string {
	switch p {
	case Transient:
		return "transient"
	case Persistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// IsValid returns true when p is one of the known persistence levels.
func (p Persistence) IsValid() bool {
	return p == Transient || p == Persistent
}

// ParsePersistence parses the textual form of a persistence level.
func ParsePersistence(s string) (Persistence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transient":
		return Transient, nil
	case "persistent":
		return Persistent, nil
	default:
		return Transient, errors.Wrapf(ErrInvalidParameter, "unknown persistence '%s'", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Persistence) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, errors.Wrapf(ErrInvalidParameter, "unknown persistence %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Persistence) UnmarshalText(text []byte) error {
	v, err := ParsePersistence(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
