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

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of the pwmpool daemon.
type Config struct {
	Pool   PoolConfig   `yaml:"pool"`
	Driver DriverConfig `yaml:"driver"`
	Bridge BridgeConfig `yaml:"bridge"`
	Server ServerConfig `yaml:"server"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Log    LogConfig    `yaml:"log"`
}

type PoolConfig struct {
	// Number of PWM channels in the pool
	Capacity int `yaml:"capacity"`
}

type DriverConfig struct {
	// Type of driver (pca9685|periph|mqtt|virtual)
	Type    string           `yaml:"type"`
	PCA9685 PCA9685Config    `yaml:"pca9685"`
	Periph  PeriphConfig     `yaml:"periph"`
	MQTT    MQTTDriverConfig `yaml:"mqtt"`
	Virtual VirtualConfig    `yaml:"virtual"`
}

type PCA9685Config struct {
	// I2C address of the chip
	Address uint8 `yaml:"address"`
}

type PeriphConfig struct {
	// Names of the PWM capable pins, pin ID N is the N-th name
	Pins []string `yaml:"pins"`
}

type MQTTDriverConfig struct {
	// Topic prefix of the remote PWM device
	TopicPrefix string `yaml:"topic_prefix"`
	// Number of pins of the remote PWM device
	Pins int `yaml:"pins"`
}

type VirtualConfig struct {
	// Number of virtual pins
	Pins int `yaml:"pins"`
}

type BridgeConfig struct {
	// Type of bridge (rpi|opz|virtual), empty to auto-detect
	Type string `yaml:"type"`
	// Recover a locked I2C bus by clocking SCL
	RecoverI2C bool `yaml:"recover_i2c"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	HTTPPort   int    `yaml:"http_port"`
	SSHPort    int    `yaml:"ssh_port"`
	SSHHostKey string `yaml:"ssh_host_key"`
}

type MQTTConfig struct {
	Enable      bool   `yaml:"enable"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UserName    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	// Forward logs to <topic_prefix>/logs
	Logs bool `yaml:"logs"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

const (
	DriverPCA9685 = "pca9685"
	DriverPeriph  = "periph"
	DriverMQTT    = "mqtt"
	DriverVirtual = "virtual"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Capacity: 8,
		},
		Driver: DriverConfig{
			Type:    DriverVirtual,
			PCA9685: PCA9685Config{Address: 0x40},
			MQTT:    MQTTDriverConfig{Pins: 16},
			Virtual: VirtualConfig{Pins: 16},
		},
		Server: ServerConfig{
			Host:       "0.0.0.0",
			HTTPPort:   8080,
			SSHPort:    7022,
			SSHHostKey: ".ssh/id_ed25519",
		},
		MQTT: MQTTConfig{
			Port:        1883,
			ClientID:    "pwmpool",
			TopicPrefix: "pwmpool",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration file at the given path on top of the defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config failed")
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config failed")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate the configuration.
func (cfg Config) Validate() error {
	if cfg.Pool.Capacity < 1 {
		return errors.New("pool.capacity must be >= 1")
	}
	switch cfg.Driver.Type {
	case DriverPCA9685:
		if a := cfg.Driver.PCA9685.Address; a < 0x03 || a > 0x77 {
			return errors.Errorf("driver.pca9685.address 0x%02x is not a valid 7-bit address", a)
		}
	case DriverPeriph:
		if len(cfg.Driver.Periph.Pins) == 0 {
			return errors.New("driver.periph.pins is required when driver.type is periph")
		}
	case DriverMQTT:
		if cfg.Driver.MQTT.TopicPrefix == "" {
			return errors.New("driver.mqtt.topic_prefix is required when driver.type is mqtt")
		}
		if cfg.Driver.MQTT.Pins < 1 {
			return errors.New("driver.mqtt.pins must be >= 1")
		}
		if cfg.MQTT.Host == "" {
			return errors.New("mqtt.host is required when driver.type is mqtt")
		}
	case DriverVirtual:
		if cfg.Driver.Virtual.Pins < 1 {
			return errors.New("driver.virtual.pins must be >= 1")
		}
	default:
		return errors.Errorf("driver.type '%s' is not one of pca9685|periph|mqtt|virtual", cfg.Driver.Type)
	}
	switch cfg.Bridge.Type {
	case "", "rpi", "opz", "virtual":
	default:
		return errors.Errorf("bridge.type '%s' is not one of rpi|opz|virtual", cfg.Bridge.Type)
	}
	if cfg.Driver.Type == DriverPCA9685 && cfg.Bridge.Type == "virtual" {
		return errors.New("driver.type pca9685 needs an I2C bus, bridge.type virtual has none")
	}
	if !validPort(cfg.Server.HTTPPort) || cfg.Server.HTTPPort == 0 {
		return errors.Errorf("server.http_port %d is invalid", cfg.Server.HTTPPort)
	}
	if !validPort(cfg.Server.SSHPort) {
		return errors.Errorf("server.ssh_port %d is invalid", cfg.Server.SSHPort)
	}
	if cfg.MQTT.Enable {
		if cfg.MQTT.Host == "" {
			return errors.New("mqtt.host is required when mqtt.enable is true")
		}
		if !validPort(cfg.MQTT.Port) {
			return errors.Errorf("mqtt.port %d is invalid", cfg.MQTT.Port)
		}
		if cfg.MQTT.TopicPrefix == "" {
			return errors.New("mqtt.topic_prefix is required when mqtt.enable is true")
		}
	}
	return nil
}

func validPort(port int) bool {
	return port >= 0 && port <= 65535
}
