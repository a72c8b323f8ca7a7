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

package stats

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// connection states reported by the engine
var connectionStates = []string{"IDLE", "CONNECTING", "OPEN", "FAILED"}

// PrometheusExporter periodically reads foxtime monitoring endpoints and exposes them as prometheus metrics
type PrometheusExporter struct {
	registry   *prometheus.Registry
	listenPort int
	target     string
	interval   time.Duration

	up         prometheus.Gauge
	probes     *prometheus.GaugeVec
	connection *prometheus.GaugeVec
	hidden     prometheus.Gauge
	samples    prometheus.Gauge
	delay      prometheus.Gauge
	offset     prometheus.Gauge

	mux    sync.Mutex
	gauges map[string]prometheus.Gauge
}

// NewPrometheusExporter creates a new instance of PrometheusExporter
func NewPrometheusExporter(listenPort int, monitoringPort int, scrapeInterval time.Duration) *PrometheusExporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &PrometheusExporter{
		registry:   reg,
		interval:   scrapeInterval,
		listenPort: listenPort,
		target:     fmt.Sprintf("http://localhost:%d", monitoringPort),
		up: f.NewGauge(prometheus.GaugeOpts{
			Name: "foxtime_up",
			Help: "Whether the last scrape of foxtime succeeded.",
		}),
		probes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foxtime_probes",
			Help: "Probes by transport and result since foxtime started.",
		}, []string{"transport", "result"}),
		connection: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foxtime_connection_state",
			Help: "1 for the current state of the datagram connection.",
		}, []string{"state"}),
		hidden: f.NewGauge(prometheus.GaugeOpts{
			Name: "foxtime_hidden",
			Help: "1 while measurements are paused.",
		}),
		samples: f.NewGauge(prometheus.GaugeOpts{
			Name: "foxtime_window_samples",
			Help: "Samples in the measurement window.",
		}),
		delay: f.NewGauge(prometheus.GaugeOpts{
			Name: "foxtime_delay_ms",
			Help: "Average round trip time over the window.",
		}),
		offset: f.NewGauge(prometheus.GaugeOpts{
			Name: "foxtime_offset_ms",
			Help: "How far local clock is ahead of the server.",
		}),
		gauges: map[string]prometheus.Gauge{},
	}
}

// Handler serves collected metrics
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start runs scrape loop and serves metrics. It never returns.
func (e *PrometheusExporter) Start() {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for ; true; <-ticker.C {
			if err := e.scrape(); err != nil {
				log.Errorf("Failed to fetch foxtime metrics: %v", err)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	addr := fmt.Sprintf(":%d", e.listenPort)
	log.Infof("Starting prometheus exporter on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (e *PrometheusExporter) scrape() error {
	counters, err := FetchCounters(e.target)
	if err != nil {
		e.up.Set(0)
		return err
	}
	stat, err := FetchStats(e.target)
	if err != nil {
		e.up.Set(0)
		return err
	}
	e.up.Set(1)
	e.setCounters(counters)
	e.setStat(stat)
	return nil
}

func (e *PrometheusExporter) setCounters(counters Counters) {
	ok, failed := counters.ProbeStats()
	for transport, v := range ok {
		e.probes.WithLabelValues(transport, "ok").Set(float64(v))
	}
	for transport, v := range failed {
		e.probes.WithLabelValues(transport, "error").Set(float64(v))
	}
	for k, v := range counters {
		if strings.HasPrefix(k, ProbeOKPrefix) || strings.HasPrefix(k, ProbeErrorPrefix) {
			continue
		}
		g, err := e.gauge(k)
		if err != nil {
			log.Errorf("failed to register metric %s: %v", k, err)
			continue
		}
		g.Set(float64(v))
	}
}

func (e *PrometheusExporter) setStat(s *Stat) {
	for _, state := range connectionStates {
		v := 0.0
		if state == s.ConnectionState {
			v = 1
		}
		e.connection.WithLabelValues(state).Set(v)
	}
	hidden := 0.0
	if s.Hidden {
		hidden = 1
	}
	e.hidden.Set(hidden)
	e.samples.Set(float64(s.Samples))
	e.delay.Set(s.Delay)
	e.offset.Set(s.Offset)
}

// gauge returns gauge for a plain counter key, registering it on first use
func (e *PrometheusExporter) gauge(key string) (prometheus.Gauge, error) {
	e.mux.Lock()
	defer e.mux.Unlock()
	if g, found := e.gauges[key]; found {
		return g, nil
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: flattenKey(key),
		Help: key,
	})
	if err := e.registry.Register(g); err != nil {
		return nil, err
	}
	e.gauges[key] = g
	return g, nil
}

var keyReplacer = strings.NewReplacer(" ", "_", ".", "_", "-", "_", "=", "_", "/", "_")

func flattenKey(key string) string {
	return keyReplacer.Replace(key)
}
