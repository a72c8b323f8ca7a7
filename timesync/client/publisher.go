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
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Offset is a message from the engine to the consumer. All values are ms.
type Offset struct {
	// Delay is average round trip time
	Delay float64 `json:"delay"`
	// TimeOriginOffset is the engine's epoch origin minus its time origin.
	// Consumers with their own monotonic clock subtract it from their epoch origin.
	TimeOriginOffset float64 `json:"timeOriginOffset"`
	// Offset is how far local wall clock is ahead of the server
	Offset float64 `json:"offset"`
}

// publisher turns the window into Offset messages
type publisher struct {
	tb  *Timebase
	out chan Offset
}

func newPublisher(tb *Timebase) *publisher {
	return &publisher{tb: tb, out: make(chan Offset, 1)}
}

func (p *publisher) compute(w *sampleWindow) Offset {
	timeOrigin := w.timeOrigin()
	mono, epoch := p.tb.Now()
	return Offset{
		Delay:            w.delay(),
		TimeOriginOffset: p.tb.EpochOrigin() - timeOrigin,
		Offset:           epoch - (mono + timeOrigin),
	}
}

// publish never blocks: an offset the consumer hasn't picked up yet is replaced
func (p *publisher) publish(o Offset) {
	for {
		select {
		case p.out <- o:
			return
		default:
		}
		select {
		case <-p.out:
		default:
		}
	}
}

// View is the consumer side of Offset messages. It keeps its own timebase and
// answers what time it is on the server.
type View struct {
	tb *Timebase

	mux        sync.RWMutex
	timeOrigin float64
}

// NewView creates a View. Until it sees an Offset the View reports local time.
func NewView(clk clock.Clock) *View {
	tb := NewTimebase(clk)
	return &View{tb: tb, timeOrigin: tb.EpochOrigin()}
}

// Bootstrap sets time origin from the server time learned out of band, before any Offset
func (v *View) Bootstrap(serverTime time.Time) {
	v.mux.Lock()
	v.timeOrigin = epochMillis(serverTime) - v.tb.Mono()
	v.mux.Unlock()
}

// Update applies an Offset
func (v *View) Update(o Offset) {
	v.mux.Lock()
	v.timeOrigin = v.tb.EpochOrigin() - o.TimeOriginOffset
	v.mux.Unlock()
}

// TimeOrigin returns time origin on the View's own monotonic scale
func (v *View) TimeOrigin() float64 {
	v.mux.RLock()
	defer v.mux.RUnlock()
	return v.timeOrigin
}

// Now returns estimated server time
func (v *View) Now() time.Time {
	return fromEpochMillis(v.tb.Mono() + v.TimeOrigin())
}

// Skew returns how far local wall clock is ahead of estimated server time
func (v *View) Skew() time.Duration {
	mono, epoch := v.tb.Now()
	ms := epoch - (mono + v.TimeOrigin())
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
