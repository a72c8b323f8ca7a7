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

//go:generate mockgen -source stats.go -destination stats_mock_test.go -package client -copyright_file ../../license_header.txt

import (
	"sync"

	"github.com/binaryf0x/foxtime/timesync/stats"
)

// counter names
const (
	counterCycleSuccess = "foxtime.cycle.success"
	counterCycleFailure = "foxtime.cycle.failure"
	counterCycleDropped = "foxtime.cycle.dropped"
	counterWindowResets = "foxtime.window.resets"
	counterWindowSize   = "foxtime.window.size"
	counterDelayUS      = "foxtime.delay_us"
	counterOffsetUS     = "foxtime.offset_us"
	counterControl      = "foxtime.control.received"
)

// StatsServer is a stats server interface
type StatsServer interface {
	// Reset atomically sets all the counters to 0
	Reset()
	SetCounter(key string, val int64)
	UpdateCounterBy(key string, count int64)
	SetStat(stat *stats.Stat)
}

// Stats is an implementation of StatsServer
type Stats struct {
	mux      sync.Mutex
	counters map[string]int64
	stat     stats.Stat
}

// NewStats created new instance of Stats
func NewStats() *Stats {
	return &Stats{
		counters: map[string]int64{},
	}
}

// UpdateCounterBy will increment counter
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mux.Lock()
	s.counters[key] += count
	s.mux.Unlock()
}

// SetCounter will set a counter to the provided value.
func (s *Stats) SetCounter(key string, val int64) {
	s.mux.Lock()
	s.counters[key] = val
	s.mux.Unlock()
}

// GetCounters returns an map of counters
func (s *Stats) GetCounters() map[string]int64 {
	ret := make(map[string]int64)
	s.mux.Lock()
	for key, val := range s.counters {
		ret[key] = val
	}
	s.mux.Unlock()
	return ret
}

// GetStat returns a copy of the latest engine stat
func (s *Stats) GetStat() stats.Stat {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.stat
}

// Reset all the values of counters
func (s *Stats) Reset() {
	s.mux.Lock()
	for k := range s.counters {
		s.counters[k] = 0
	}
	s.mux.Unlock()
}

// SetStat sets latest engine stat
func (s *Stats) SetStat(stat *stats.Stat) {
	s.mux.Lock()
	s.stat = *stat
	s.mux.Unlock()
}

func probeCounter(transport string, err error) string {
	if err != nil {
		return stats.ProbeErrorPrefix + transport
	}
	return stats.ProbeOKPrefix + transport
}
