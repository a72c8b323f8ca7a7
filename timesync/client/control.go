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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/binaryf0x/foxtime/timesync/protocol"
)

// Control is a message from the consumer to the engine
type Control struct {
	// Hidden is required
	Hidden *bool `json:"hidden"`
	// InitialTimeOrigin is a time origin guess to use until first measurement, ms
	InitialTimeOrigin *float64 `json:"initialTimeOrigin,omitempty"`
	// TransportPort enables datagram probing on this port
	TransportPort *int `json:"transportPort,omitempty"`
	// TransportCertHash is base64 SHA-256 of the datagram endpoint certificate
	TransportCertHash *string `json:"transportCertHash,omitempty"`
}

// Validate Control is sane
func (c *Control) Validate() error {
	if c.Hidden == nil {
		return fmt.Errorf("hidden must be set")
	}
	if c.TransportPort != nil && (*c.TransportPort < 1 || *c.TransportPort > 65535) {
		return fmt.Errorf("transportPort must be between 1 and 65535")
	}
	if c.TransportCertHash != nil {
		if c.TransportPort == nil {
			return fmt.Errorf("transportCertHash requires transportPort")
		}
		if _, err := DecodeCertHash(*c.TransportCertHash); err != nil {
			return fmt.Errorf("invalid transportCertHash: %w", err)
		}
	}
	return nil
}

// certHash returns decoded cert hash, nil if not set
func (c *Control) certHash() []byte {
	if c.TransportCertHash == nil {
		return nil
	}
	h, _ := DecodeCertHash(*c.TransportCertHash)
	return h
}

// ParseControl decodes and validates a Control message. Unknown fields are rejected.
func ParseControl(b []byte) (*Control, error) {
	c := &Control{}
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	if err := d.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding control message: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewVisibility returns a Control carrying only visibility
func NewVisibility(hidden bool) *Control {
	return &Control{Hidden: &hidden}
}

// DecodeCertHash decodes base64 SHA-256 hash, empty string gives nil
func DecodeCertHash(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	h, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(h) != protocol.CertHashSize {
		return nil, fmt.Errorf("want %d bytes, got %d", protocol.CertHashSize, len(h))
	}
	return h, nil
}
