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

package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"

	syscall "golang.org/x/sys/unix"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/server"
	log "github.com/sirupsen/logrus"
)

const pprofHTTP = "localhost:6060"

func main() {
	cfg := server.Config{}

	var (
		debugger bool
		logLevel string
	)

	flag.StringVar(&logLevel, "loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	flag.BoolVar(&cfg.ListenAny, "listen-any", false, "Listen on all addresses instead of loopback only")
	flag.IntVar(&cfg.Port, "port", server.DefaultPort, "Port to serve HTTP on")
	flag.BoolVar(&cfg.H2C, "h2c", false, "Accept HTTP/2 without TLS")
	flag.StringVar(&cfg.Unix, "unix", "", "Serve HTTP on this unix socket instead of TCP")
	flag.StringVar(&cfg.TLSCert, "tls-cert", "", "PEM certificate for https. Also presented over WebTransport")
	flag.StringVar(&cfg.TLSKey, "tls-key", "", "PEM key for https")
	flag.BoolVar(&cfg.WebTransport, "web-transport", false, "Serve time datagrams over WebTransport")
	flag.IntVar(&cfg.WebTransportPort, "web-transport-port", server.DefaultPort, "UDP port for WebTransport")
	flag.BoolVar(&debugger, "pprof", false, "Enable pprof")

	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	s, err := server.New(cfg, clock.New())
	if err != nil {
		log.Fatalf("Config is invalid: %v", err)
	}

	if debugger {
		log.Warningf("Staring profiler on %s", pprofHTTP)
		go func() {
			log.Println(http.ListenAndServe(pprofHTTP, nil))
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle interrupt for graceful shutdown
	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT)
	signal.Notify(sigStop, syscall.SIGQUIT)
	signal.Notify(sigStop, syscall.SIGTERM)
	go func() {
		<-sigStop
		log.Warning("Graceful shutdown")
		cancel()
	}()

	if err := s.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
