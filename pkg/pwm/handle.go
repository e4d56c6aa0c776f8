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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Handle identifies a channel in a Pool.
// It pairs the slot index with the generation of that slot, so a handle
// that outlives a release is detected instead of aliasing the next owner
// of the slot.
// The zero Handle never refers to a live channel.
type Handle struct {
	slot       int
	generation uint32
}

// Slot returns the index of the slot this handle refers to.
func (h Handle) Slot() int { return h.slot }

// Generation returns the slot generation this handle was issued for.
func (h Handle) Generation() uint32 { return h.generation }

// IsZero returns true for the zero Handle.
func (h Handle) IsZero() bool { return h.generation == 0 }

// String returns the "<slot>.<generation>" form of the handle.
func (h Handle) String() string {
	return strconv.Itoa(h.slot) + "." + strconv.FormatUint(uint64(h.generation), 10)
}

// ParseHandle parses the "<slot>.<generation>" form of a handle.
func ParseHandle(s string) (Handle, error) {
	slotPart, genPart, found := strings.Cut(s, ".")
	if !found {
		return Handle{}, errors.Wrapf(ErrInvalidParameter, "malformed handle '%s'", s)
	}
	slot, err := strconv.Atoi(slotPart)
	if err != nil || slot < 0 {
		return Handle{}, errors.Wrapf(ErrInvalidParameter, "malformed handle slot '%s'", s)
	}
	gen, err := strconv.ParseUint(genPart, 10, 32)
	if err != nil || gen == 0 {
		return Handle{}, errors.Wrapf(ErrInvalidParameter, "malformed handle generation '%s'", s)
	}
	return Handle{slot: slot, generation: uint32(gen)}, nil
}

// MarshalText implements encoding.TextMarshaler.
// The zero Handle is encoded as an empty string.
func (h Handle) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Handle{}
		return nil
	}
	v, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
