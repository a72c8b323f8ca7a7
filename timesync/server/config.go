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

package server

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is a default port for both HTTP and WebTransport listeners
const DefaultPort = 8123

// Config is a server config structure
type Config struct {
	ListenAny        bool
	Port             int
	H2C              bool
	Unix             string
	TLSCert          string
	TLSKey           string
	WebTransport     bool
	WebTransportPort int
}

// Validate checks if config is valid
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls certificate and key must be specified together")
	}
	if c.Unix != "" {
		if c.ListenAny {
			return fmt.Errorf("unix socket can't be combined with listening on any address")
		}
		if c.TLS() {
			return fmt.Errorf("unix socket can't be combined with tls")
		}
	}
	if c.H2C && c.TLS() {
		return fmt.Errorf("h2c can't be combined with tls")
	}
	if c.WebTransport && (c.WebTransportPort < 0 || c.WebTransportPort > 65535) {
		return fmt.Errorf("invalid webtransport port %d", c.WebTransportPort)
	}
	return nil
}

// TLS tells if HTTP listener serves https
func (c *Config) TLS() bool {
	return c.TLSCert != ""
}

func (c *Config) host() string {
	if c.ListenAny {
		return ""
	}
	return "127.0.0.1"
}

// Addr returns TCP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.host(), strconv.Itoa(c.Port))
}

// WebTransportAddr returns UDP listen address for WebTransport
func (c *Config) WebTransportAddr() string {
	return net.JoinHostPort(c.host(), strconv.Itoa(c.WebTransportPort))
}
