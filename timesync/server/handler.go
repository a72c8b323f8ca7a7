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
	"encoding/json"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Handler serves time, bootstrap and metrics endpoints
type Handler struct {
	clk   clock.Clock
	stats *Stats
	// WebTransport parameters announced on bootstrap, zero if disabled
	wtPort int
	wtHash string

	mux *http.ServeMux
}

// NewHandler returns Handler. wtPort and wtHash are announced to clients
// via bootstrap when WebTransport is enabled.
func NewHandler(clk clock.Clock, stats *Stats, wtPort int, wtHash string) *Handler {
	h := &Handler{
		clk:    clk,
		stats:  stats,
		wtPort: wtPort,
		wtHash: wtHash,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc(protocol.WellKnownPath, h.handleTime)
	h.mux.HandleFunc(protocol.BootstrapPath, h.handleBootstrap)
	h.mux.Handle("/metrics", promhttp.HandlerFor(stats.Registry(), promhttp.HandlerOpts{}))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return false
}

func (h *Handler) handleTime(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	h.stats.requests.WithLabelValues(protocol.WellKnownPath, r.Method).Inc()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(protocol.TimeHeader, protocol.FormatTime(h.clk.Now()))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	h.stats.requests.WithLabelValues(protocol.BootstrapPath, r.Method).Inc()
	b := protocol.Bootstrap{
		ServerTime:           protocol.Seconds(h.clk.Now()),
		WebTransportPort:     h.wtPort,
		WebTransportCertHash: h.wtHash,
	}
	js, err := json.Marshal(b)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}
