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
	"io"
	"net/http"
	"time"

	"github.com/binaryf0x/foxtime/timesync/protocol"
	log "github.com/sirupsen/logrus"
)

// HTTPProber measures time with HEAD requests to the well-known path
type HTTPProber struct {
	url        string
	client     *http.Client
	tb         *Timebase
	staleAfter time.Duration
	// monotonic ms of the last timed request
	lastRequest float64
}

// NewHTTPProber returns a prober for serverURL. Plain host[:port] is accepted as well.
// If client is nil a new one is created.
func NewHTTPProber(serverURL string, tb *Timebase, staleAfter time.Duration, client *http.Client) (*HTTPProber, error) {
	u, err := protocol.NormalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{
		url:         u,
		client:      client,
		tb:          tb,
		staleAfter:  staleAfter,
		lastRequest: tb.Mono(),
	}, nil
}

// URL returns the time URL requests go to
func (p *HTTPProber) URL() string {
	return p.url
}

// Probe runs a timed request. When the previous one is older than staleAfter the
// pooled connection has likely been closed by the server, so a throwaway request is
// made first and connection setup does not end up in the measured delay.
func (p *HTTPProber) Probe(ctx context.Context) (*Sample, error) {
	if p.tb.Mono()-p.lastRequest > millis(p.staleAfter) {
		p.client.CloseIdleConnections()
		if _, err := p.do(ctx); err != nil {
			log.Debugf("preflight request to %s failed: %v", p.url, err)
		}
	}

	sent := p.tb.Mono()
	resp, err := p.do(ctx)
	received := p.tb.Mono()
	if err != nil {
		return nil, &TransportError{Op: "http", Err: err}
	}
	p.lastRequest = received
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	secs, err := protocol.ParseTime(resp.Header.Get(protocol.TimeHeader))
	if err != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Err: err}
	}
	return &Sample{
		RequestSent:      sent,
		ResponseReceived: received,
		ServerTime:       secs * 1000,
		Transport:        TransportHTTP,
	}, nil
}

// do sends a HEAD request and returns response with its body already consumed
func (p *HTTPProber) do(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp, nil
}

// Close releases idle connections
func (p *HTTPProber) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
