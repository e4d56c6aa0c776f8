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
	"testing"
)

func TestVirtual(t *testing.T) {
	d := NewVirtual(4)
	if d.PinCount() != 4 {
		t.Errorf("expected 4 pins, got %d", d.PinCount())
	}

	d.RedirectOutput(1, 2)
	d.SetDutyRatio(1, 0.75)
	d.SetPeriodRegister(1, 500)
	out, found := d.Output(2)
	if !found {
		t.Fatal("expected pin 2 to be driven")
	}
	if out.Channel != 1 || out.Duty != 0.75 || out.PeriodUs != 500 {
		t.Errorf("unexpected output %+v", out)
	}

	d.RedirectOutput(1, 3)
	if _, found := d.Output(2); found {
		t.Error("expected pin 2 to be released after redirect")
	}

	d.DisableOutput(1)
	if _, found := d.Output(3); found {
		t.Error("expected pin 3 to be released after disable")
	}
	if d.Operations() != 5 {
		t.Errorf("expected 5 operations, got %d", d.Operations())
	}
}
