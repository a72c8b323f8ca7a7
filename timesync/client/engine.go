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
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/protocol"
	"github.com/binaryf0x/foxtime/timesync/stats"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// controlQueueSize is how many control messages may wait for the loop
const controlQueueSize = 16

// ErrInvalidControl is returned for control messages failing validation
var ErrInvalidControl = errors.New("invalid control message")

// persistentFactory creates a datagram prober for port, pinned to certHash if set
type persistentFactory func(port int, certHash []byte) (Prober, error)

type cycleResult struct {
	sample *Sample
	err    error
}

// Engine keeps estimating server time in the background. Everything but the
// Control/Offsets channels and the State/TimeOrigin snapshots is owned by the loop
// goroutine started with Run.
type Engine struct {
	cfg        *Config
	tb         *Timebase
	stats      StatsServer
	fallback   Prober
	persistent Prober
	newPersist persistentFactory

	server    string
	window    *sampleWindow
	publisher *publisher
	control   chan *Control

	phase           Phase
	hidden          bool
	timer           *clock.Timer
	nextDelay       time.Duration
	lastProbeSentAt float64
	pendingControl  *Control
	bootstrapOrigin float64

	state      atomic.Value // SchedulerState
	timeOrigin atomic.Uint64
}

// NewEngine creates an Engine probing cfg.Server over HTTP, and over WebTransport
// if cfg.Transport.Port is set
func NewEngine(cfg *Config, stats StatsServer) (*Engine, error) {
	tb := NewTimebase(clock.New())
	fallback, err := NewHTTPProber(cfg.Server, tb, cfg.StaleAfter, nil)
	if err != nil {
		return nil, err
	}
	e := newEngine(cfg, tb, fallback, stats)
	e.newPersist = func(port int, certHash []byte) (Prober, error) {
		u, err := protocol.SessionURL(fallback.URL(), port)
		if err != nil {
			return nil, err
		}
		return NewDatagramProber(u, certHash, tb)
	}
	if cfg.Transport.Port != 0 {
		certHash, err := DecodeCertHash(cfg.Transport.CertHash)
		if err != nil {
			return nil, err
		}
		if e.persistent, err = e.newPersist(cfg.Transport.Port, certHash); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func newEngine(cfg *Config, tb *Timebase, fallback Prober, stats StatsServer) *Engine {
	server, err := protocol.NormalizeURL(cfg.Server)
	if err != nil {
		server = cfg.Server
	}
	e := &Engine{
		cfg:             cfg,
		server:          server,
		tb:              tb,
		stats:           stats,
		fallback:        fallback,
		window:          newSampleWindow(cfg.WindowSize),
		publisher:       newPublisher(tb),
		control:         make(chan *Control, controlQueueSize),
		phase:           PhaseIdle,
		bootstrapOrigin: math.NaN(),
	}
	e.timeOrigin.Store(math.Float64bits(math.NaN()))
	e.publishState()
	return e
}

// Timebase returns the timebase all engine timestamps are on
func (e *Engine) Timebase() *Timebase {
	return e.tb
}

// Offsets returns the channel offsets are published on. Only the latest unread
// offset is kept.
func (e *Engine) Offsets() <-chan Offset {
	return e.publisher.out
}

// Control passes a control message to the engine
func (e *Engine) Control(ctx context.Context, c *Control) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidControl, err)
	}
	select {
	case e.control <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the scheduler state
func (e *Engine) State() SchedulerState {
	return e.state.Load().(SchedulerState)
}

// TimeOrigin returns current time origin estimate in ms: the window average, or the
// bootstrap value before the first sample. NaN if neither is known.
func (e *Engine) TimeOrigin() float64 {
	return math.Float64frombits(e.timeOrigin.Load())
}

func (e *Engine) publishState() {
	e.state.Store(SchedulerState{
		Phase:           e.phase,
		Hidden:          e.hidden,
		NextDelay:       e.nextDelay,
		LastProbeSentAt: e.lastProbeSentAt,
		Samples:         e.window.len(),
	})
}

func (e *Engine) apply(ev event) {
	to, err := transition(e.phase, ev)
	if err != nil {
		log.Errorf("sync loop: %v", err)
		return
	}
	if to != e.phase {
		log.Debugf("sync loop: %s -> %s (%s)", e.phase, to, ev)
	}
	e.phase = to
	e.publishState()
}

func (e *Engine) startTimer(d time.Duration) {
	e.stopTimer()
	e.timer = e.tb.Clock().Timer(d)
	e.nextDelay = d
}

// stopTimer is safe to call with no timer pending
func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.nextDelay = 0
}

// Run runs the sync loop until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	defer e.closeProbers()
	results := make(chan cycleResult, 1)

	e.startTimer(e.cfg.ShortInterval)
	e.apply(eventArm)
	for {
		var timerC <-chan time.Time
		if e.timer != nil {
			timerC = e.timer.C
		}
		select {
		case <-ctx.Done():
			log.Debug("cancelled sync loop")
			e.stopTimer()
			if e.phase == PhaseProbing {
				<-results
			}
			return ctx.Err()
		case c := <-e.control:
			e.handleControl(c)
		case <-timerC:
			e.timer = nil
			e.nextDelay = 0
			e.startProbe(ctx, results)
		case r := <-results:
			e.completeProbe(r)
		}
	}
}

func (e *Engine) startProbe(ctx context.Context, results chan<- cycleResult) {
	e.applyTransport()
	e.lastProbeSentAt = e.tb.Mono()
	e.apply(eventFire)
	persistent, fallback := e.persistent, e.fallback
	go func() {
		results <- e.measure(ctx, persistent, fallback)
	}()
}

// measure tries the persistent transport first and falls back to HTTP within the same
// cycle if it fails
func (e *Engine) measure(ctx context.Context, persistent, fallback Prober) cycleResult {
	var errs error
	if persistent != nil {
		s, err := e.probe(ctx, persistent, TransportDatagram)
		if err == nil {
			return cycleResult{sample: s}
		}
		log.Warningf("datagram probe failed, falling back to http: %v", err)
		errs = multierr.Append(errs, err)
	}
	s, err := e.probe(ctx, fallback, TransportHTTP)
	if err != nil {
		return cycleResult{err: multierr.Append(errs, err)}
	}
	return cycleResult{sample: s}
}

func (e *Engine) probe(ctx context.Context, p Prober, transport string) (*Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
	defer cancel()
	s, err := p.Probe(ctx)
	e.stats.UpdateCounterBy(probeCounter(transport, err), 1)
	if err != nil {
		return nil, err
	}
	log.Debug(color.GreenString("[%s] client -> %.3f", transport, s.RequestSent))
	log.Debug(color.BlueString("[%s] server -> %.3f at %.3f (delay %.3fms)", transport, s.ServerTime, s.ResponseReceived, s.Delay()))
	return s, nil
}

func (e *Engine) completeProbe(r cycleResult) {
	if e.hidden {
		log.Debug("consumer is hidden, dropping measurement")
		e.stats.UpdateCounterBy(counterCycleDropped, 1)
		e.apply(eventDoneHidden)
		return
	}
	var o *Offset
	if r.err != nil {
		log.Warningf("failed to request time from server: %v", r.err)
		e.stats.UpdateCounterBy(counterCycleFailure, 1)
	} else {
		published := e.accept(r.sample)
		o = &published
	}
	e.applyTransport()
	e.startTimer(nextInterval(r.err == nil, e.window.full(), e.cfg.ShortInterval, e.cfg.LongInterval))
	e.apply(eventDone)
	e.setStat(r.sample, o, r.err)
}

func (e *Engine) accept(s *Sample) Offset {
	log.Debugf("measured round-trip time of %.2fms, time origin of %.3f", s.Delay(), s.TimeOrigin())
	if e.window.add(s) {
		log.Info("large clock drift detected, clearing measurement history")
		e.stats.UpdateCounterBy(counterWindowResets, 1)
	}
	o := e.publisher.compute(e.window)
	e.timeOrigin.Store(math.Float64bits(e.window.timeOrigin()))
	e.publisher.publish(o)

	e.stats.UpdateCounterBy(counterCycleSuccess, 1)
	e.stats.SetCounter(counterWindowSize, int64(e.window.len()))
	e.stats.SetCounter(counterDelayUS, int64(o.Delay*1000))
	e.stats.SetCounter(counterOffsetUS, int64(o.Offset*1000))
	return o
}

func (e *Engine) setStat(s *Sample, o *Offset, err error) {
	stat := &stats.Stat{
		Phase:      e.phase.String(),
		Hidden:     e.hidden,
		Samples:    e.window.len(),
		TimeOrigin: e.TimeOrigin(),
		Server:     e.server,
	}
	if p, ok := e.persistent.(*DatagramProber); ok {
		stat.ConnectionState = p.State().String()
	}
	if err != nil {
		stat.Error = err.Error()
	}
	if s != nil {
		stat.Transport = s.Transport
		stat.IngressTime = e.tb.Clock().Now().UnixNano()
	}
	if o != nil {
		stat.Delay = o.Delay
		stat.TimeOriginOffset = o.TimeOriginOffset
		stat.Offset = o.Offset
	}
	if math.IsNaN(stat.TimeOrigin) {
		stat.TimeOrigin = 0
	}
	e.stats.SetStat(stat)
}

func (e *Engine) handleControl(c *Control) {
	e.stats.UpdateCounterBy(counterControl, 1)
	if c.InitialTimeOrigin != nil {
		e.bootstrapOrigin = *c.InitialTimeOrigin
		if e.window.len() == 0 {
			e.timeOrigin.Store(math.Float64bits(e.bootstrapOrigin))
		}
	}
	if c.TransportPort != nil {
		e.pendingControl = c
		if e.phase != PhaseProbing {
			e.applyTransport()
		}
	}

	e.hidden = *c.Hidden
	if e.hidden {
		if e.timer != nil {
			log.Info("pausing measurements")
		}
		e.stopTimer()
		e.apply(eventHide)
		return
	}
	if e.phase == PhaseIdle || e.phase == PhasePaused {
		log.Info("resuming measurements")
		e.startTimer(e.cfg.ShortInterval)
	}
	e.apply(eventShow)
}

// applyTransport swaps the persistent prober for the one requested by the last
// control message. Never called while a probe is in flight.
func (e *Engine) applyTransport() {
	c := e.pendingControl
	if c == nil {
		return
	}
	e.pendingControl = nil
	if e.newPersist == nil {
		log.Warning("datagram transport is not supported by this engine")
		return
	}
	p, err := e.newPersist(*c.TransportPort, c.certHash())
	if err != nil {
		log.Errorf("failed to configure datagram transport: %v", err)
		return
	}
	if e.persistent != nil {
		if err := e.persistent.Close(); err != nil {
			log.Warningf("closing datagram prober: %v", err)
		}
	}
	e.persistent = p
	log.Infof("datagram transport configured on port %d", *c.TransportPort)
}

func (e *Engine) closeProbers() {
	if e.persistent != nil {
		if err := e.persistent.Close(); err != nil {
			log.Warningf("closing datagram prober: %v", err)
		}
	}
	if err := e.fallback.Close(); err != nil {
		log.Warningf("closing http prober: %v", err)
	}
}
