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
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var procStartTime = time.Now()

type memStat struct {
	name  string
	value func(*runtime.MemStats) uint64
}

// reported as is on every collection
var memGauges = []memStat{
	{"runtime.mem.alloc", func(m *runtime.MemStats) uint64 { return m.Alloc }},
	{"runtime.mem.total", func(m *runtime.MemStats) uint64 { return m.TotalAlloc }},
	{"runtime.mem.sys", func(m *runtime.MemStats) uint64 { return m.Sys }},
	{"runtime.mem.heap.alloc", func(m *runtime.MemStats) uint64 { return m.HeapAlloc }},
	{"runtime.mem.heap.inuse", func(m *runtime.MemStats) uint64 { return m.HeapInuse }},
	{"runtime.mem.heap.objects", func(m *runtime.MemStats) uint64 { return m.HeapObjects }},
	{"runtime.mem.stack.inuse", func(m *runtime.MemStats) uint64 { return m.StackInuse }},
	{"runtime.mem.gc.count", func(m *runtime.MemStats) uint64 { return uint64(m.NumGC) }},
}

// reported as sum and rate against the previous collection
var memRates = []memStat{
	{"runtime.mem.mallocs", func(m *runtime.MemStats) uint64 { return m.Mallocs }},
	{"runtime.mem.frees", func(m *runtime.MemStats) uint64 { return m.Frees }},
	{"runtime.gc.pause_ns", func(m *runtime.MemStats) uint64 { return m.PauseTotalNs }},
	{"runtime.gc.count", func(m *runtime.MemStats) uint64 { return uint64(m.NumGC) }},
}

// SysStats collects process and Go runtime metrics
type SysStats struct {
	proc *process.Process
	prev *runtime.MemStats
}

// setRate adds name.sum.N and name.rate.N for a counter which went from prev to cur
// over interval of N seconds. Counter resets are skipped.
func setRate(name string, counts map[string]uint64, cur, prev uint64, interval time.Duration) {
	if prev > cur {
		return
	}
	secs := max(uint64(interval.Seconds()), 1)
	counts[fmt.Sprintf("%s.sum.%d", name, secs)] = cur - prev
	counts[fmt.Sprintf("%s.rate.%d", name, secs)] = (cur - prev) / secs
}

func (s *SysStats) processStats(counts map[string]uint64, interval time.Duration) error {
	if s.proc == nil {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		s.proc = proc
	}
	counts["process.uptime"] = uint64(time.Since(procStartTime).Seconds())
	if pct, err := s.proc.Percent(0); err == nil {
		counts[fmt.Sprintf("process.cpu_pct.avg.%d", int(interval.Seconds()))] = uint64(pct * 100)
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		counts["process.rss"] = mem.RSS
		counts["process.vms"] = mem.VMS
	}
	if fds, err := s.proc.NumFDs(); err == nil {
		counts["process.num_fds"] = uint64(fds)
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		counts["process.num_threads"] = uint64(threads)
	}
	return nil
}

// CollectRuntimeStats returns process and runtime counters. Rates appear from the second call on.
func (s *SysStats) CollectRuntimeStats(interval time.Duration) (map[string]uint64, error) {
	counts := map[string]uint64{}
	if err := s.processStats(counts, interval); err != nil {
		return nil, err
	}

	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	counts["runtime.cpu.goroutines"] = uint64(runtime.NumGoroutine())
	for _, g := range memGauges {
		counts[g.name] = g.value(m)
	}
	if s.prev != nil {
		for _, r := range memRates {
			setRate(r.name, counts, r.value(m), r.value(s.prev), interval)
		}
	}
	s.prev = m
	return counts, nil
}
