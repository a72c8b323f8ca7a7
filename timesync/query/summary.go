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

package query

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/eclesh/welford"
)

// delays are recorded in microseconds, up to a minute
const (
	histMin     = 1
	histMax     = 60_000_000
	histSigFigs = 3
)

// Summary aggregates successful results. Values are ms.
type Summary struct {
	Sent         int
	Received     int
	MeanOffset   float64
	StddevOffset float64
	MinDelay     float64
	MeanDelay    float64
	StddevDelay  float64
	MaxDelay     float64
	DelayP50     float64
	DelayP90     float64
	DelayP99     float64
}

// Loss returns share of probes without a response, in percent
func (s *Summary) Loss() float64 {
	if s.Sent == 0 {
		return 0
	}
	return 100 * float64(s.Sent-s.Received) / float64(s.Sent)
}

func usToMs(v int64) float64 {
	return float64(v) / 1000
}

// Summarize computes Summary over results
func Summarize(results []Result) *Summary {
	s := &Summary{Sent: len(results), MinDelay: math.Inf(1)}
	offsets := welford.New()
	delays := welford.New()
	hist := hdrhistogram.New(histMin, histMax, histSigFigs)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		s.Received++
		offsets.Add(r.Offset)
		delays.Add(r.Delay)
		s.MinDelay = math.Min(s.MinDelay, r.Delay)
		s.MaxDelay = math.Max(s.MaxDelay, r.Delay)
		us := int64(math.Round(r.Delay * 1000))
		_ = hist.RecordValue(max(us, histMin))
	}
	if s.Received == 0 {
		s.MinDelay = 0
		return s
	}
	s.MeanOffset = offsets.Mean()
	s.MeanDelay = delays.Mean()
	if s.Received > 1 {
		s.StddevOffset = offsets.Stddev()
		s.StddevDelay = delays.Stddev()
	}
	s.DelayP50 = usToMs(hist.ValueAtQuantile(50))
	s.DelayP90 = usToMs(hist.ValueAtQuantile(90))
	s.DelayP99 = usToMs(hist.ValueAtQuantile(99))
	return s
}
