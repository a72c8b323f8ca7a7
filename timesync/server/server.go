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
Package server implements the time server: HTTP endpoints answering with
x-httpstime header and an optional WebTransport endpoint answering time
datagrams.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server is a time server
type Server struct {
	Config Config
	Stats  *Stats
	Clock  clock.Clock

	identity *Identity
	http     *http.Server
	wt       *WebTransportServer
	closing  atomic.Bool
}

// New returns a Server for a valid config
func New(cfg Config, clk clock.Clock) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		Config: cfg,
		Stats:  NewStats(),
		Clock:  clk,
	}
	if err := s.loadIdentity(); err != nil {
		return nil, err
	}
	var (
		wtPort int
		wtHash string
	)
	if cfg.WebTransport {
		wtPort = cfg.WebTransportPort
		wtHash = s.identity.HashBase64()
		s.wt = NewWebTransportServer(cfg.WebTransportAddr(), s.identity, clk, s.Stats)
	}
	var h http.Handler = NewHandler(clk, s.Stats, wtPort, wtHash)
	if cfg.H2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}
	s.http = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLS() {
		s.http.TLSConfig = s.identity.TLSConfig()
	}
	return s, nil
}

func (s *Server) loadIdentity() error {
	var err error
	switch {
	case s.Config.TLS():
		s.identity, err = LoadIdentity(s.Config.TLSCert, s.Config.TLSKey)
	case s.Config.WebTransport:
		s.identity, err = SelfSignedIdentity(s.Clock.Now(), "localhost", "127.0.0.1", "::1")
	}
	return err
}

// Identity returns certificate presented by the server, nil for plain HTTP
func (s *Server) Identity() *Identity {
	return s.identity
}

func (s *Server) listen() (net.Listener, error) {
	if s.Config.Unix != "" {
		if err := os.Remove(s.Config.Unix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		log.Infof("Starting listener on unix:%s", s.Config.Unix)
		return net.Listen("unix", s.Config.Unix)
	}
	log.Infof("Starting listener on %s", s.Config.Addr())
	return net.Listen("tcp", s.Config.Addr())
}

// Start runs listeners until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	var pc net.PacketConn
	if s.wt != nil {
		pc, err = net.ListenPacket("udp", s.Config.WebTransportAddr())
		if err != nil {
			ln.Close()
			return fmt.Errorf("listening for webtransport: %w", err)
		}
		log.Infof("Starting webtransport listener on %s, certificate hash %s", pc.LocalAddr(), s.identity.HashBase64())
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if s.Config.TLS() {
			err = s.http.ServeTLS(ln, "", "")
		} else {
			err = s.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if pc != nil {
		eg.Go(func() error {
			err := s.wt.Serve(pc)
			if s.closing.Load() {
				return nil
			}
			return err
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("Failed to notify systemd: %v", err)
	} else if ok {
		log.Debug("Notified systemd")
	}
	return eg.Wait()
}

func (s *Server) shutdown() error {
	s.closing.Store(true)
	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if s.wt != nil {
		err = multierr.Append(err, s.wt.Close())
	}
	return err
}
