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

package devices

import (
	"github.com/binkynet/PwmPool/pkg/metrics"
)

const (
	subSystem = "driver"
)

var (
	// Total number of driver operations by driver and operation
	driverOperationsTotal = metrics.MustRegisterCounterVec(subSystem,
		"operations_total",
		"Total number of driver operations",
		"driver", "op")
	// Total number of failed driver operations by driver and operation
	driverErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"errors_total",
		"Total number of failed driver operations",
		"driver", "op")
)
