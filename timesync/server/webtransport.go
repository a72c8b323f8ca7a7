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
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/protocol"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	log "github.com/sirupsen/logrus"
)

// datagramSession is the part of webtransport.Session the echo loop needs
type datagramSession interface {
	ReceiveDatagram(context.Context) ([]byte, error)
	SendDatagram([]byte) error
}

// WebTransportServer answers time datagrams on WebTransport sessions
type WebTransportServer struct {
	clk   clock.Clock
	stats *Stats
	wt    *webtransport.Server
}

// NewWebTransportServer returns a server presenting identity on addr
func NewWebTransportServer(addr string, identity *Identity, clk clock.Clock, stats *Stats) *WebTransportServer {
	s := &WebTransportServer{
		clk:   clk,
		stats: stats,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.WellKnownPath, s.handleSession)
	s.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			Handler:   mux,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{identity.Certificate}},
		},
		// time is public, any page may ask for it
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// Serve accepts sessions on conn until Close is called
func (s *WebTransportServer) Serve(conn net.PacketConn) error {
	return s.wt.Serve(conn)
}

// Close closes listener and all sessions
func (s *WebTransportServer) Close() error {
	return s.wt.Close()
}

func (s *WebTransportServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.wt.Upgrade(w, r)
	if err != nil {
		log.Warningf("webtransport upgrade from %s failed: %v", r.RemoteAddr, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	id := uuid.New()
	log.Debugf("[%s] webtransport session from %s", id, r.RemoteAddr)
	s.stats.sessions.Inc()
	s.stats.activeSessions.Inc()
	defer s.stats.activeSessions.Dec()

	err = s.serve(sess.Context(), sess)
	log.Debugf("[%s] webtransport session closed: %v", id, err)
}

// serve echoes every request datagram with server time appended.
// Short datagrams are dropped, the session stays open.
func (s *WebTransportServer) serve(ctx context.Context, sess datagramSession) error {
	buf := make([]byte, 0, protocol.ResponseSize)
	for {
		req, err := sess.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		resp, err := protocol.AppendResponse(buf[:0], req, s.clk.Now())
		if err != nil {
			s.stats.malformed.Inc()
			log.Debugf("dropping datagram: %v", err)
			continue
		}
		if err := sess.SendDatagram(resp); err != nil {
			return err
		}
		s.stats.datagrams.Inc()
	}
}
