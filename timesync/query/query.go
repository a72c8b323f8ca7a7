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

/*
Package query implements one-shot measurements against a time server
used by the foxtime-query tool.
*/
package query

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/binaryf0x/foxtime/timesync/protocol"
	log "github.com/sirupsen/logrus"
)

// Config for a query run
type Config struct {
	Server       string
	WebTransport bool
	CertHash     []byte
	Timeout      time.Duration
	Count        int
	Interval     time.Duration
}

// Result of a single probe. Delay and Offset are ms.
type Result struct {
	Seq        int
	URL        string
	Transport  string
	ServerTime float64 // epoch ms
	LocalTime  float64 // epoch ms at the midpoint of the exchange
	Delay      float64
	Offset     float64 // how far local clock is ahead of the server
	Err        error
}

// TargetURL turns user input into the URL to probe. Plain HTTP is assumed
// when no scheme is given unless WebTransport is requested.
func TargetURL(raw string, webTransport bool) (string, error) {
	if !strings.Contains(raw, "://") && !webTransport {
		raw = "http://" + raw
	}
	u, err := protocol.NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	if !webTransport {
		return u, nil
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", err
	}
	parsed.Scheme = "https"
	return parsed.String(), nil
}

// NewProber returns a prober for cfg
func NewProber(cfg *Config, tb *client.Timebase) (client.Prober, string, error) {
	target, err := TargetURL(cfg.Server, cfg.WebTransport)
	if err != nil {
		return nil, "", err
	}
	if cfg.WebTransport {
		p, err := client.NewDatagramProber(target, cfg.CertHash, tb)
		return p, target, err
	}
	// every timed request goes over a connection opened by a warm-up request
	p, err := client.NewHTTPProber(target, tb, 0, &http.Client{Timeout: cfg.Timeout})
	return p, target, err
}

// Measure turns a sample into a Result
func Measure(seq int, target string, tb *client.Timebase, s *client.Sample) Result {
	local := tb.EpochOrigin() + (s.RequestSent+s.ResponseReceived)/2
	return Result{
		Seq:        seq,
		URL:        target,
		Transport:  s.Transport,
		ServerTime: s.ServerTime,
		LocalTime:  local,
		Delay:      s.Delay(),
		Offset:     tb.EpochOrigin() - s.TimeOrigin(),
	}
}

// Run probes the server cfg.Count times, cfg.Interval apart.
// Each result is passed to cb as soon as it is available.
func Run(ctx context.Context, cfg *Config, tb *client.Timebase, p client.Prober, target string, cb func(Result)) []Result {
	results := make([]Result, 0, cfg.Count)
	ticker := tb.Clock().Ticker(cfg.Interval)
	defer ticker.Stop()
	for i := range cfg.Count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-ticker.C:
			}
		}
		pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		s, err := p.Probe(pctx)
		cancel()
		r := Result{Seq: i + 1, URL: target, Err: err}
		if err == nil {
			r = Measure(i+1, target, tb, s)
		} else {
			log.Debugf("probe %d failed: %v", i+1, err)
		}
		results = append(results, r)
		if cb != nil {
			cb(r)
		}
	}
	return results
}

// Failed returns error if none of results succeeded
func Failed(results []Result) error {
	for _, r := range results {
		if r.Err == nil {
			return nil
		}
	}
	if len(results) == 0 {
		return fmt.Errorf("no probes sent")
	}
	return results[len(results)-1].Err
}
