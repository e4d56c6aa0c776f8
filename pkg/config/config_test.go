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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pwmpool.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
pool:
  capacity: 4
driver:
  type: pca9685
  pca9685:
    address: 0x41
bridge:
  type: rpi
mqtt:
  enable: true
  host: broker.local
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pool.Capacity != 4 {
		t.Errorf("expected capacity 4, got %d", cfg.Pool.Capacity)
	}
	if cfg.Driver.Type != DriverPCA9685 || cfg.Driver.PCA9685.Address != 0x41 {
		t.Errorf("unexpected driver %+v", cfg.Driver)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Log.Level != "info" {
		t.Errorf("expected defaults for unset sections, got %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.MQTT.Port != 1883 || cfg.MQTT.TopicPrefix != "pwmpool" {
		t.Errorf("expected mqtt defaults, got %+v", cfg.MQTT)
	}
}

func TestLoadPeriphPins(t *testing.T) {
	path := writeConfig(t, `
driver:
  type: periph
  periph:
    pins: [GPIO12, GPIO13, GPIO18]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Driver.Periph.Pins) != 3 || cfg.Driver.Periph.Pins[2] != "GPIO18" {
		t.Errorf("unexpected pins %v", cfg.Driver.Periph.Pins)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"capacity", "pool:\n  capacity: 0\n", "pool.capacity"},
		{"driver type", "driver:\n  type: servo\n", "driver.type"},
		{"periph pins", "driver:\n  type: periph\n", "driver.periph.pins"},
		{"pca9685 address", "driver:\n  type: pca9685\n  pca9685:\n    address: 0x00\n", "driver.pca9685.address"},
		{"pca9685 on virtual bridge", "driver:\n  type: pca9685\nbridge:\n  type: virtual\n", "I2C bus"},
		{"bridge type", "bridge:\n  type: beaglebone\n", "bridge.type"},
		{"http port", "server:\n  http_port: 70000\n", "server.http_port"},
		{"mqtt host", "mqtt:\n  enable: true\n", "mqtt.host"},
		{"mqtt driver prefix", "driver:\n  type: mqtt\nmqtt:\n  host: broker\n", "driver.mqtt.topic_prefix"},
		{"mqtt driver host", "driver:\n  type: mqtt\n  mqtt:\n    topic_prefix: remote/pwm\n", "mqtt.host"},
	}
	for _, tc := range tests {
		_, err := Load(writeConfig(t, tc.content))
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.expected) {
			t.Errorf("%s: expected error mentioning %q, got %v", tc.name, tc.expected, err)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "pool: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
