/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"fmt"
	"os"
	"time"

	"github.com/binaryf0x/foxtime/timesync/protocol"
	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// TransportConfig describes the datagram transport
type TransportConfig struct {
	Port     int    `yaml:"port"`     // WebTransport port, 0 disables datagram probing
	CertHash string `yaml:"certhash"` // base64 SHA-256 of the server certificate
}

// BridgeConfig describes the WebSocket consumer bridge on the monitoring port
type BridgeConfig struct {
	Enabled bool `yaml:"enabled"` // serve /ws and fan offsets out to subscribers
}

// Validate TransportConfig is sane
func (c *TransportConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	if _, err := DecodeCertHash(c.CertHash); err != nil {
		return fmt.Errorf("certhash must be base64 of %d bytes: %w", protocol.CertHashSize, err)
	}
	return nil
}

// Config specifies engine run options
type Config struct {
	Server                   string
	MonitoringPort           int
	ShortInterval            time.Duration
	LongInterval             time.Duration
	StaleAfter               time.Duration
	WindowSize               int
	ExchangeTimeout          time.Duration
	Bootstrap                bool
	MetricsAggregationWindow time.Duration
	Transport                TransportConfig
	Bridge                   BridgeConfig
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		MonitoringPort:           4270,
		ShortInterval:            time.Second,
		LongInterval:             time.Minute,
		StaleAfter:               10 * time.Second,
		WindowSize:               5,
		ExchangeTimeout:          5 * time.Second,
		MetricsAggregationWindow: time.Minute,
		Bridge:                   BridgeConfig{Enabled: true},
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server must be specified")
	}
	if _, err := protocol.NormalizeURL(c.Server); err != nil {
		return fmt.Errorf("invalid server: %w", err)
	}
	if c.MonitoringPort < 0 {
		return fmt.Errorf("monitoringport must be 0 or positive")
	}
	if c.ShortInterval <= 0 {
		return fmt.Errorf("shortinterval must be greater than zero")
	}
	if c.LongInterval < c.ShortInterval {
		return fmt.Errorf("longinterval must not be less than shortinterval")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("staleafter must be greater than zero")
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("windowsize must be at least 1")
	}
	if c.ExchangeTimeout <= 0 {
		return fmt.Errorf("exchangetimeout must be greater than zero")
	}
	if c.MetricsAggregationWindow <= 0 {
		return fmt.Errorf("metricsaggregationwindow must be greater than zero")
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("invalid transport config: %w", err)
	}
	return nil
}

// ReadConfig reads config from the file
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(cData, &c)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// PrepareConfig prepares final version of config based on defaults, CLI flags and on-disk config, and validates resulting config
func PrepareConfig(cfgPath string, server string, monitoringPort int, transportPort int, certHash string, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if setFlags["server"] {
		warn("server")
		cfg.Server = server
	}
	if setFlags["monitoringport"] {
		warn("monitoringPort")
		cfg.MonitoringPort = monitoringPort
	}
	if setFlags["transportport"] {
		warn("transport.port")
		cfg.Transport.Port = transportPort
	}
	if setFlags["certhash"] {
		warn("transport.certhash")
		cfg.Transport.CertHash = certHash
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}
