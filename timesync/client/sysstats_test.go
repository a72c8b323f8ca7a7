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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

func collectedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func TestCollectRuntimeStats(t *testing.T) {
	s := SysStats{}
	runtimeKeys := []string{
		"process.rss",
		"process.uptime",
		"runtime.cpu.goroutines",
		"runtime.mem.alloc",
		"runtime.mem.gc.count",
		"runtime.mem.heap.inuse",
	}
	rateKeys := []string{
		"runtime.gc.count.rate.2",
		"runtime.mem.frees.sum.2",
		"runtime.mem.mallocs.rate.2",
		"runtime.mem.mallocs.sum.2",
	}

	collected, err := s.CollectRuntimeStats(2 * time.Second)
	require.NoError(t, err)
	keys := collectedKeys(collected)
	require.Subset(t, keys, runtimeKeys)
	for _, k := range rateKeys {
		require.NotContains(t, keys, k)
	}

	// rates need a previous collection
	collected, err = s.CollectRuntimeStats(2 * time.Second)
	require.NoError(t, err)
	require.Subset(t, collectedKeys(collected), append(runtimeKeys, rateKeys...))
}

func TestSetRate(t *testing.T) {
	counts := map[string]uint64{}
	setRate("datagrams", counts, 130, 10, 4*time.Second)
	require.Equal(t, map[string]uint64{
		"datagrams.sum.4":  120,
		"datagrams.rate.4": 30,
	}, counts)
}

func TestSetRateSubSecond(t *testing.T) {
	counts := map[string]uint64{}
	setRate("datagrams", counts, 7, 2, 500*time.Millisecond)
	require.Equal(t, map[string]uint64{
		"datagrams.sum.1":  5,
		"datagrams.rate.1": 5,
	}, counts)
}

func TestSetRateCounterReset(t *testing.T) {
	counts := map[string]uint64{}
	setRate("datagrams", counts, 1, 20, time.Second)
	require.Empty(t, counts)
}
