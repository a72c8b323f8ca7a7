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
	"errors"
	"flag"
	"net/http"
	"os/signal"

	_ "net/http/pprof"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	syscall "golang.org/x/sys/unix"

	"github.com/binaryf0x/foxtime/timesync/bridge"
	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/binaryf0x/foxtime/timesync/protocol"
)

func bootstrap(ctx context.Context, cfg *client.Config, e *client.Engine, view *client.View) {
	c, err := client.FetchBootstrap(ctx, &http.Client{Timeout: cfg.ExchangeTimeout}, cfg.Server, e.Timebase())
	if err != nil {
		log.Warningf("bootstrap from %s failed: %v", cfg.Server, err)
		return
	}
	serverNow := *c.InitialTimeOrigin + e.Timebase().Mono()
	view.Bootstrap(protocol.SecondsToTime(serverNow / 1000))
	if err := e.Control(ctx, c); err != nil {
		log.Warningf("applying bootstrap: %v", err)
	}
}

func consume(ctx context.Context, offsets <-chan client.Offset, view *client.View, hub *bridge.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-offsets:
			view.Update(o)
			if hub != nil {
				hub.Broadcast(o)
			}
			log.Infof("offset %.3fms, delay %.3fms, server time %s", o.Offset, o.Delay, view.Now().UTC())
		}
	}
}

func doWork(cfg *client.Config) error {
	stats := client.NewJSONStats()
	e, err := client.NewEngine(cfg, stats)
	if err != nil {
		return err
	}
	var hub *bridge.Hub
	if cfg.Bridge.Enabled {
		hub = bridge.NewHub(e)
		stats.Handle("/ws", hub)
	}
	stats.Handle("/control", e.ControlHandler())
	go stats.Start(cfg.MonitoringPort, cfg.MetricsAggregationWindow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	view := client.NewView(clock.New())
	if cfg.Bootstrap {
		bootstrap(ctx, cfg, e, view)
	}
	go consume(ctx, e.Offsets(), view, hub)

	err = e.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warning("Graceful shutdown")
		return nil
	}
	return err
}

func main() {
	var (
		verboseFlag        bool
		serverFlag         string
		monitoringPortFlag int
		transportPortFlag  int
		certHashFlag       string
		configFlag         string
		pprofFlag          string
	)
	defaults := client.DefaultConfig()

	flag.BoolVar(&verboseFlag, "verbose", false, "verbose output")
	flag.StringVar(&serverFlag, "server", defaults.Server, "time server to synchronize with")
	flag.StringVar(&configFlag, "config", "", "path to the config")
	flag.IntVar(&monitoringPortFlag, "monitoringport", defaults.MonitoringPort, "port to start monitoring http server on")
	flag.IntVar(&transportPortFlag, "transportport", defaults.Transport.Port, "WebTransport port of the server, 0 to use HTTP only")
	flag.StringVar(&certHashFlag, "certhash", defaults.Transport.CertHash, "base64 SHA-256 hash of the server WebTransport certificate")
	flag.StringVar(&pprofFlag, "pprof", "", "Address to have the profiler listen on, disabled if empty.")

	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}
	cfg, err := client.PrepareConfig(configFlag, serverFlag, monitoringPortFlag, transportPortFlag, certHashFlag, setFlags)
	if err != nil {
		log.Fatal(err)
	}
	if pprofFlag != "" {
		go func() {
			err = http.ListenAndServe(pprofFlag, nil)
			if err != nil {
				log.Errorf("Failed to start pprof. Err: %v", err)
			}
		}()
	}
	if err := doWork(cfg); err != nil {
		log.Fatal(err)
	}
}
