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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/binaryf0x/foxtime/timesync/protocol"
)

// FetchBootstrap asks the server for its bootstrap info and turns it into a Control
// message on the timebase tb. The time origin it carries is only as good as one
// unmeasured one way trip.
func FetchBootstrap(ctx context.Context, client *http.Client, serverURL string, tb *Timebase) (*Control, error) {
	u, err := protocol.NormalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	u = strings.TrimSuffix(u, protocol.WellKnownPath) + protocol.BootstrapPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "bootstrap", Err: err}
	}
	defer resp.Body.Close()
	received := tb.Mono()
	if resp.StatusCode != http.StatusOK {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	b := &protocol.Bootstrap{}
	if err := json.NewDecoder(resp.Body).Decode(b); err != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding bootstrap: %w", err)}
	}

	origin := b.ServerTime*1000 - received
	c := NewVisibility(false)
	c.InitialTimeOrigin = &origin
	if b.WebTransportPort != 0 {
		port := b.WebTransportPort
		c.TransportPort = &port
		if b.WebTransportCertHash != "" {
			hash := b.WebTransportCertHash
			c.TransportCertHash = &hash
		}
	}
	if err := c.Validate(); err != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Err: err}
	}
	return c, nil
}
