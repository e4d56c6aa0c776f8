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

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/binkynet/PwmPool/pkg/metrics"
	"github.com/binkynet/PwmPool/pkg/pwm"
)

const (
	subSystem = "pool"
)

var (
	// Total number of pool requests by operation and result
	requestsTotal = metrics.MustRegisterCounterVec(subSystem,
		"requests_total",
		"Total number of pool requests by operation and result",
		"op", "result")
	// Total number of allocations by result
	allocationsTotal = metrics.MustRegisterCounterVec(subSystem,
		"allocations_total",
		"Total number of allocations by result (fresh|reclaimed|exhausted|failed)",
		"result")
	// Total number of released channels
	releasesTotal = metrics.MustRegisterCounter(subSystem,
		"releases_total",
		"Total number of released channels")
	// Total number of duty writes
	dutyWritesTotal = metrics.MustRegisterCounter(subSystem,
		"duty_writes_total",
		"Total number of duty writes")
	// Number of slots in use
	slotsInUseGauge = metrics.MustRegisterGauge(subSystem,
		"slots_in_use",
		"Number of slots in use")
	// Number of slots holding a persistent channel
	persistentSlotsGauge = metrics.MustRegisterGauge(subSystem,
		"persistent_slots",
		"Number of slots holding a persistent channel")
	// Time spent by requests on the queue and in the driver
	requestDuration = metrics.MustRegisterHistogram(subSystem,
		"request_duration_seconds",
		"Time from queueing a pool request until it completed",
		prometheus.ExponentialBuckets(0.0001, 4, 8))
	// Shared period in microseconds
	periodUsGauge = metrics.MustRegisterGauge(subSystem,
		"period_microseconds",
		"Shared period in microseconds")
)

// resultLabel classifies an error for metric labels.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pwm.IsInvalidParameter(err):
		return "invalid"
	case pwm.IsNoChannelsAvailable(err):
		return "exhausted"
	case pwm.IsStaleHandle(err):
		return "stale"
	case pwm.IsPinInUse(err):
		return "pin-in-use"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
