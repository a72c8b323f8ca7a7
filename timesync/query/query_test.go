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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	samples []*client.Sample
	errs    []error
	calls   int
}

func (f *fakeProber) Probe(context.Context) (*client.Sample, error) {
	i := f.calls
	f.calls++
	if f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.samples[i], nil
}

func (f *fakeProber) Close() error { return nil }

func TestTargetURL(t *testing.T) {
	tests := []struct {
		in   string
		wt   bool
		want string
	}{
		{in: "localhost:8123", want: "http://localhost:8123/.well-known/time"},
		{in: "https://time.example.com", want: "https://time.example.com/.well-known/time"},
		{in: "http://localhost:8123/.well-known/time", want: "http://localhost:8123/.well-known/time"},
		{in: "localhost:8123", wt: true, want: "https://localhost:8123/.well-known/time"},
		{in: "http://localhost:8123/", wt: true, want: "https://localhost:8123/.well-known/time"},
	}
	for _, tt := range tests {
		got, err := TargetURL(tt.in, tt.wt)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	_, err := TargetURL("ftp://localhost", false)
	require.Error(t, err)
}

func TestMeasure(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0))
	tb := client.NewTimebase(clk)

	// server is 100ms behind: local epoch at mono 15 is 1000015, server says 999915
	s := &client.Sample{RequestSent: 10, ResponseReceived: 20, ServerTime: 999915, Transport: client.TransportHTTP}
	r := Measure(3, "http://x/.well-known/time", tb, s)
	require.Equal(t, 3, r.Seq)
	require.Equal(t, 10.0, r.Delay)
	require.Equal(t, 100.0, r.Offset)
	require.Equal(t, 1000015.0, r.LocalTime)
	require.Equal(t, 999915.0, r.ServerTime)
	require.Equal(t, client.TransportHTTP, r.Transport)
}

func TestRun(t *testing.T) {
	tb := client.NewTimebase(clock.New())
	errTimeout := errors.New("timeout")
	p := &fakeProber{
		samples: []*client.Sample{{RequestSent: 0, ResponseReceived: 2, ServerTime: tb.EpochOrigin() + 1}, nil, {RequestSent: 4, ResponseReceived: 8, ServerTime: tb.EpochOrigin() + 6}},
		errs:    []error{nil, errTimeout, nil},
	}
	cfg := &Config{Count: 3, Interval: time.Millisecond, Timeout: time.Second}
	seen := 0
	results := Run(context.Background(), cfg, tb, p, "http://x", func(Result) { seen++ })
	require.Len(t, results, 3)
	require.Equal(t, 3, seen)
	require.Equal(t, 3, p.calls)

	require.NoError(t, results[0].Err)
	require.Equal(t, 2.0, results[0].Delay)
	require.InDelta(t, 0.0, results[0].Offset, 1e-3)
	require.ErrorIs(t, results[1].Err, errTimeout)
	require.Equal(t, 2, results[1].Seq)
	require.Equal(t, 4.0, results[2].Delay)

	require.NoError(t, Failed(results))
	require.ErrorIs(t, Failed(results[1:2]), errTimeout)
	require.Error(t, Failed(nil))
}

func TestRunCancelled(t *testing.T) {
	tb := client.NewTimebase(clock.New())
	p := &fakeProber{samples: []*client.Sample{{ResponseReceived: 1}, {ResponseReceived: 1}}, errs: []error{nil, nil}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := Run(ctx, &Config{Count: 2, Interval: time.Hour, Timeout: time.Second}, tb, p, "http://x", nil)
	require.Len(t, results, 1)
	require.Equal(t, 1, p.calls)
}

func testResults() []Result {
	return []Result{
		{Seq: 1, Offset: 1, Delay: 10},
		{Seq: 2, Offset: 3, Delay: 20},
		{Seq: 3, Err: errors.New("timeout")},
		{Seq: 4, Offset: 5, Delay: 30},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testResults())
	require.Equal(t, 4, s.Sent)
	require.Equal(t, 3, s.Received)
	require.Equal(t, 25.0, s.Loss())
	require.Equal(t, 3.0, s.MeanOffset)
	require.Equal(t, 2.0, s.StddevOffset)
	require.Equal(t, 20.0, s.MeanDelay)
	require.Equal(t, 10.0, s.StddevDelay)
	require.Equal(t, 10.0, s.MinDelay)
	require.Equal(t, 30.0, s.MaxDelay)
	require.InDelta(t, 20.0, s.DelayP50, 0.05)
	require.InDelta(t, 30.0, s.DelayP90, 0.05)
	require.InDelta(t, 30.0, s.DelayP99, 0.05)
}

func TestSummarizeNothing(t *testing.T) {
	s := Summarize([]Result{{Err: errors.New("nope")}})
	require.Equal(t, 1, s.Sent)
	require.Zero(t, s.Received)
	require.Equal(t, 100.0, s.Loss())
	require.Zero(t, s.MinDelay)

	require.Zero(t, Summarize(nil).Loss())
}

func TestCheck(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{expr: "abs(mean(offset)) < 5", want: true},
		{expr: "mean(delay) == 20", want: true},
		{expr: "percentile(delay, 50) == 20 && percentile(delay, 99) == 30", want: true},
		{expr: "max(offset) - min(offset) > 4", want: false},
		{expr: "stddev(offset) == 2", want: true},
		{expr: "loss < 10", want: false},
		{expr: "received == 3 && sent == 4", want: true},
	}
	for _, tt := range tests {
		c, err := NewCheck(tt.expr)
		require.NoError(t, err, tt.expr)
		got, err := c.Eval(testResults())
		require.NoError(t, err, tt.expr)
		require.Equal(t, tt.want, got, tt.expr)
	}
}

func TestCheckErrors(t *testing.T) {
	_, err := NewCheck("mean(jitter) < 1")
	require.ErrorContains(t, err, `unsupported variable "jitter"`)

	_, err = NewCheck("mean(offset <")
	require.Error(t, err)

	c, err := NewCheck("mean(offset)")
	require.NoError(t, err)
	_, err = c.Eval(testResults())
	require.ErrorContains(t, err, "not a boolean")

	c, err = NewCheck("mean(offset) < 1")
	require.NoError(t, err)
	_, err = c.Eval([]Result{{Err: errors.New("timeout")}})
	require.ErrorContains(t, err, "no values")
}

func TestPercentile(t *testing.T) {
	vals := []float64{5, 1, 4, 2, 3}
	require.Equal(t, 1.0, percentile(vals, 0))
	require.Equal(t, 3.0, percentile(vals, 50))
	require.Equal(t, 5.0, percentile(vals, 100))
	require.Equal(t, []float64{5, 1, 4, 2, 3}, vals)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, Result{URL: "http://x/.well-known/time", ServerTime: 1700000000123, LocalTime: 1700000000223, Offset: 100, Delay: 2.5})
	require.Contains(t, buf.String(), "Server: http://x/.well-known/time")
	require.Contains(t, buf.String(), "1700000000.123000")
	require.Contains(t, buf.String(), "2.500 milliseconds")

	buf.Reset()
	PrintSummary(&buf, "http://x", Summarize(testResults()))
	require.Contains(t, buf.String(), "4 probes sent, 3 received, 25.0% loss")
	require.Contains(t, buf.String(), "10.000/20.000/30.000/10.000 ms")

	buf.Reset()
	PrintTable(&buf, testResults())
	require.Contains(t, buf.String(), "timeout")
	require.Contains(t, buf.String(), "30.000")
}
