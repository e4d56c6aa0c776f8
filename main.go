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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/binkynet/PwmPool/pkg/config"
	"github.com/binkynet/PwmPool/pkg/environment"
	"github.com/binkynet/PwmPool/pkg/logging"
	"github.com/binkynet/PwmPool/pkg/mqtt"
	"github.com/binkynet/PwmPool/pkg/publisher"
	"github.com/binkynet/PwmPool/pkg/server"
	"github.com/binkynet/PwmPool/pkg/service"
	"github.com/binkynet/PwmPool/pkg/service/bridge"
	"github.com/binkynet/PwmPool/pkg/service/devices"
	"github.com/binkynet/PwmPool/pkg/ui"
)

const (
	projectName = "BinkyNet PWM Pool"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var configPath string
	cfg := config.Default()
	flags := pflag.CommandLine
	flags.StringVarP(&configPath, "config", "c", "", "Path of the YAML configuration file")
	flags.StringVarP(&cfg.Log.Level, "level", "l", cfg.Log.Level, "Set log level")
	flags.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Path of a rotating log file")
	flags.StringVarP(&cfg.Bridge.Type, "bridge", "b", cfg.Bridge.Type, "Type of bridge to use (rpi|opz|virtual), empty to auto-detect")
	flags.StringVarP(&cfg.Driver.Type, "driver", "d", cfg.Driver.Type, "Type of PWM driver (pca9685|periph|mqtt|virtual)")
	flags.IntVar(&cfg.Pool.Capacity, "capacity", cfg.Pool.Capacity, "Number of PWM channels in the pool")
	flags.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Host address the servers will listen on")
	flags.IntVar(&cfg.Server.HTTPPort, "http-port", cfg.Server.HTTPPort, "Port the HTTP server will listen on")
	flags.IntVar(&cfg.Server.SSHPort, "ssh-port", cfg.Server.SSHPort, "Port the SSH console will listen on (0 to disable)")
	flags.StringVar(&cfg.MQTT.Host, "mqtt-host", cfg.MQTT.Host, "Host of the MQTT broker, enables publishing")
	pflag.Parse()

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			Exitf("Failed to load configuration: %v\n", err)
		}
		cfg = mergeFlags(flags, loaded, cfg)
	}
	if flags.Changed("mqtt-host") {
		cfg.MQTT.Enable = true
	}
	if err := cfg.Validate(); err != nil {
		Exitf("Invalid configuration: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttLogWriter := logging.NewMQTTWriter(ctx)
	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, mqttLogWriter)
	if err != nil {
		Exitf("Failed to initialize logging: %v\n", err)
	}

	bridgeType := cfg.Bridge.Type
	if bridgeType == "" {
		bridgeType = environment.AutoDetectBridgeType(logger)
	}
	br, err := bridge.New(bridgeType, cfg.Bridge.RecoverI2C)
	if err != nil {
		Exitf("Failed to initialize %s bridge: %v\n", bridgeType, err)
	}

	var mqttSvc mqtt.Service
	if cfg.MQTT.Enable || cfg.Driver.Type == config.DriverMQTT {
		mqttSvc, err = mqtt.NewService(mqtt.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			UserName: cfg.MQTT.UserName,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		}, logger)
		if err != nil {
			Exitf("Failed to initialize MQTT: %v\n", err)
		}
	}

	driver, err := newDriver(cfg.Driver, br, mqttSvc, logger)
	if err != nil {
		br.Close()
		Exitf("Failed to initialize %s driver: %v\n", cfg.Driver.Type, err)
	}

	svc, err := service.NewService(service.Config{
		Capacity: cfg.Pool.Capacity,
	}, service.Dependencies{
		Logger: logger,
		Driver: driver,
		Bridge: br,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	srv, err := server.New(server.Config{
		Host:           cfg.Server.Host,
		HTTPPort:       cfg.Server.HTTPPort,
		SSHPort:        cfg.Server.SSHPort,
		SSHHostKeyPath: cfg.Server.SSHHostKey,
		ProgramVersion: projectVersion,
	}, logger, ui.New(svc, logger), svc)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	var pub *publisher.Publisher
	if cfg.MQTT.Enable {
		pub = publisher.New(logger, svc, mqttSvc, cfg.MQTT.TopicPrefix)
		if cfg.MQTT.Logs {
			mqttLogWriter.SetDestination(strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")+"/logs", mqttSvc)
			mqttLogWriter.Enable(true)
		}
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	logger.Info().
		Str("bridge", bridgeType).
		Str("driver", driver.Name()).
		Int("pins", driver.PinCount()).
		Int("capacity", cfg.Pool.Capacity).
		Msg("Starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if pub != nil {
		g.Go(func() error { return pub.Run(ctx) })
	}
	runErr := g.Wait()

	var ae aerr.AggregateError
	if mqttSvc != nil {
		if err := mqttSvc.Close(); err != nil {
			ae.Add(err)
		}
	}
	if err := br.Close(); err != nil {
		ae.Add(err)
	}
	if err := logCloser.Close(); err != nil {
		ae.Add(err)
	}
	if runErr != nil {
		Exitf("Service run failed: %v\n", runErr)
	}
	if err := ae.AsError(); err != nil {
		Exitf("Shutdown failed: %v\n", err)
	}
}

// newDriver creates the PWM driver described by the given config.
func newDriver(cfg config.DriverConfig, br bridge.API, mqttSvc mqtt.Service, log zerolog.Logger) (devices.PWMDriver, error) {
	switch cfg.Type {
	case config.DriverPCA9685:
		bus, err := br.I2CBus()
		if err != nil {
			return nil, errors.Wrap(err, "I2CBus failed")
		}
		address := cfg.PCA9685.Address
		if !lo.Contains(bus.DetectSlaveAddresses(), address) {
			log.Warn().Uint8("address", address).Msg("No PCA9685 detected on I2C bus")
		}
		return devices.NewPCA9685(bus, address, log), nil
	case config.DriverPeriph:
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "periph host init failed")
		}
		pins, err := devices.ResolvePeriphPins(cfg.Periph.Pins)
		if err != nil {
			return nil, err
		}
		return devices.NewPeriph(pins, log), nil
	case config.DriverMQTT:
		return devices.NewMQTTPWM(mqttSvc, cfg.MQTT.TopicPrefix, cfg.MQTT.Pins, log), nil
	case config.DriverVirtual:
		return devices.NewVirtual(cfg.Virtual.Pins), nil
	default:
		return nil, errors.Errorf("unknown driver type '%s'", cfg.Type)
	}
}

// mergeFlags returns the loaded config with all explicitly set flags applied.
func mergeFlags(flags *pflag.FlagSet, loaded, fromFlags config.Config) config.Config {
	if flags.Changed("level") {
		loaded.Log.Level = fromFlags.Log.Level
	}
	if flags.Changed("log-file") {
		loaded.Log.File = fromFlags.Log.File
	}
	if flags.Changed("bridge") {
		loaded.Bridge.Type = fromFlags.Bridge.Type
	}
	if flags.Changed("driver") {
		loaded.Driver.Type = fromFlags.Driver.Type
	}
	if flags.Changed("capacity") {
		loaded.Pool.Capacity = fromFlags.Pool.Capacity
	}
	if flags.Changed("host") {
		loaded.Server.Host = fromFlags.Server.Host
	}
	if flags.Changed("http-port") {
		loaded.Server.HTTPPort = fromFlags.Server.HTTPPort
	}
	if flags.Changed("ssh-port") {
		loaded.Server.SSHPort = fromFlags.Server.SSHPort
	}
	if flags.Changed("mqtt-host") {
		loaded.MQTT.Host = fromFlags.MQTT.Host
	}
	return loaded
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
