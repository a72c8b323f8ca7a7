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
)

// slidingWindow holds the last size samples, newest first
type slidingWindow struct {
	size        int
	currentSize int
	samples     []float64
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	w := &slidingWindow{
		size:    size,
		samples: make([]float64, size),
	}
	w.reset()
	return w
}

func (w *slidingWindow) add(sample float64) {
	if !w.full() {
		w.currentSize++
	}
	for i := w.currentSize - 1; i > 0; i-- {
		w.samples[i] = w.samples[i-1]
	}
	w.samples[0] = sample
}

func (w *slidingWindow) reset() {
	w.currentSize = 0
	for i := range w.size {
		w.samples[i] = math.NaN()
	}
}

// allSamples returns samples oldest first
func (w *slidingWindow) allSamples() []float64 {
	res := make([]float64, w.currentSize)
	for i := range w.currentSize {
		res[w.currentSize-1-i] = w.samples[i]
	}
	return res
}

func (w *slidingWindow) len() int {
	return w.currentSize
}

func (w *slidingWindow) mean() float64 {
	if w.currentSize == 0 {
		return math.NaN()
	}
	return mean(w.samples[:w.currentSize])
}

func (w *slidingWindow) full() bool {
	return w.currentSize == w.size
}

func mean(data []float64) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// sampleWindow keeps delays and time origins of recent samples side by side
type sampleWindow struct {
	delays  *slidingWindow
	origins *slidingWindow
}

func newSampleWindow(size int) *sampleWindow {
	return &sampleWindow{
		delays:  newSlidingWindow(size),
		origins: newSlidingWindow(size),
	}
}

// push appends a sample, evicting the oldest one when full
func (w *sampleWindow) push(delay, origin float64) {
	w.delays.add(delay)
	w.origins.add(origin)
}

// driftCheck clears the window when newOrigin is further from the average origin than
// the round trip it was measured with. Such a jump can't be network jitter, the clock
// itself has changed. Returns true if the window was cleared.
func (w *sampleWindow) driftCheck(newOrigin, newDelay float64) bool {
	if w.len() == 0 {
		return false
	}
	if math.Abs(w.origins.mean()-newOrigin) > newDelay {
		w.delays.reset()
		w.origins.reset()
		return true
	}
	return false
}

// add runs drift check and pushes the sample. Returns true if history was discarded.
func (w *sampleWindow) add(s *Sample) bool {
	delay, origin := s.Delay(), s.TimeOrigin()
	drift := w.driftCheck(origin, delay)
	w.push(delay, origin)
	return drift
}

func (w *sampleWindow) len() int {
	return w.delays.len()
}

func (w *sampleWindow) full() bool {
	return w.delays.full()
}

func (w *sampleWindow) delay() float64 {
	return w.delays.mean()
}

func (w *sampleWindow) timeOrigin() float64 {
	return w.origins.mean()
}
