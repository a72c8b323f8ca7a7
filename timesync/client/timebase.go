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
	"time"

	"github.com/benbjohnson/clock"
)

// Timebase maps a clock onto two millisecond scales: monotonic time elapsed since the
// timebase was created, and wall time since the Unix epoch.
type Timebase struct {
	clk    clock.Clock
	origin time.Time
}

// NewTimebase returns a Timebase with its origin at the current time of clk
func NewTimebase(clk clock.Clock) *Timebase {
	return &Timebase{clk: clk, origin: clk.Now()}
}

// Clock returns underlying clock
func (tb *Timebase) Clock() clock.Clock {
	return tb.clk
}

// Mono returns monotonic ms since origin
func (tb *Timebase) Mono() float64 {
	return millis(tb.clk.Since(tb.origin))
}

// Now returns monotonic ms and epoch ms from a single clock reading
func (tb *Timebase) Now() (mono float64, epoch float64) {
	t := tb.clk.Now()
	return millis(t.Sub(tb.origin)), epochMillis(t)
}

// EpochOrigin returns the wall time of the origin as epoch ms
func (tb *Timebase) EpochOrigin() float64 {
	return epochMillis(tb.origin)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func epochMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func fromEpochMillis(ms float64) time.Time {
	return time.Unix(0, int64(ms*float64(time.Millisecond)))
}
