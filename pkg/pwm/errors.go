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
	"github.com/pkg/errors"
)

var (
	// ErrInvalidParameter is returned for a negative duty ratio, period or pin.
	// The pool and the hardware are left untouched.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNoChannelsAvailable is returned when every channel is held by a
	// persistent owner. The pool never retries on its own.
	ErrNoChannelsAvailable = errors.New("no channels available")
	// ErrStaleHandle is returned when a handle is used after its channel
	// has been released.
	ErrStaleHandle = errors.New("stale handle")
	// ErrPinInUse is returned when another live channel already drives the pin.
	ErrPinInUse = errors.New("pin in use")

	maskAny = errors.WithStack
)

// IsInvalidParameter returns true if the cause of the given error is ErrInvalidParameter.
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

// IsNoChannelsAvailable returns true if the cause of the given error is ErrNoChannelsAvailable.
func IsNoChannelsAvailable(err error) bool {
	return errors.Is(err, ErrNoChannelsAvailable)
}

// IsStaleHandle returns true if the cause of the given error is ErrStaleHandle.
func IsStaleHandle(err error) bool {
	return errors.Is(err, ErrStaleHandle)
}

// IsPinInUse returns true if the cause of the given error is ErrPinInUse.
func IsPinInUse(err error) bool {
	return errors.Is(err, ErrPinInUse)
}
