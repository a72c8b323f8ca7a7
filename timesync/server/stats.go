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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats holds server metrics
type Stats struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	sessions       prometheus.Counter
	activeSessions prometheus.Gauge
	datagrams      prometheus.Counter
	malformed      prometheus.Counter
}

// NewStats creates Stats backed by a dedicated registry
func NewStats() *Stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Stats{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foxtime",
			Name:      "http_requests_total",
			Help:      "Time requests served over HTTP.",
		}, []string{"path", "method"}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "foxtime",
			Name:      "webtransport_sessions_total",
			Help:      "WebTransport sessions accepted.",
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "foxtime",
			Name:      "webtransport_sessions_active",
			Help:      "WebTransport sessions currently open.",
		}),
		datagrams: f.NewCounter(prometheus.CounterOpts{
			Namespace: "foxtime",
			Name:      "datagrams_total",
			Help:      "Time datagrams answered.",
		}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "foxtime",
			Name:      "datagrams_malformed_total",
			Help:      "Datagrams dropped for being too short.",
		}),
	}
}

// Registry returns underlying prometheus registry
func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}
