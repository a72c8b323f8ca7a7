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
	"fmt"
	"io"

	"github.com/binaryf0x/foxtime/timesync/protocol"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// PrintResult prints a single measurement
func PrintResult(w io.Writer, r Result) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s probe %d: %v\n", color.RedString("[FAIL]"), r.Seq, r.Err)
		return
	}
	fmt.Fprintf(w, "Server: %s\n", r.URL)
	fmt.Fprintf(w, "Server time: %s\n", protocol.FormatTime(protocol.SecondsToTime(r.ServerTime/1000)))
	fmt.Fprintf(w, "Local time:  %s (RTT-adjusted)\n", protocol.FormatTime(protocol.SecondsToTime(r.LocalTime/1000)))
	fmt.Fprintf(w, "Offset:      %s milliseconds\n", colorOffset(r.Offset))
	fmt.Fprintf(w, "RTT:         %.3f milliseconds\n", r.Delay)
}

func colorOffset(ms float64) string {
	switch {
	case ms > 1000 || ms < -1000:
		return color.RedString("%.3f", ms)
	case ms > 100 || ms < -100:
		return color.YellowString("%.3f", ms)
	}
	return color.GreenString("%.3f", ms)
}

// PrintTable prints results one per row
func PrintTable(w io.Writer, results []Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"seq", "transport", "server time", "offset(ms)", "rtt(ms)", "error"})
	for _, r := range results {
		if r.Err != nil {
			table.Append([]string{fmt.Sprintf("%d", r.Seq), "", "", "", "", r.Err.Error()})
			continue
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.Seq),
			r.Transport,
			protocol.FormatTime(protocol.SecondsToTime(r.ServerTime / 1000)),
			fmt.Sprintf("%.3f", r.Offset),
			fmt.Sprintf("%.3f", r.Delay),
			"",
		})
	}
	table.Render()
}

// PrintSummary prints aggregate statistics
func PrintSummary(w io.Writer, target string, s *Summary) {
	fmt.Fprintf(w, "--- %s statistics ---\n", target)
	fmt.Fprintf(w, "%d probes sent, %d received, %.1f%% loss\n", s.Sent, s.Received, s.Loss())
	if s.Received == 0 {
		return
	}
	fmt.Fprintf(w, "offset mean/stddev = %s/%.3f ms\n", colorOffset(s.MeanOffset), s.StddevOffset)
	fmt.Fprintf(w, "rtt min/mean/max/stddev = %.3f/%.3f/%.3f/%.3f ms\n", s.MinDelay, s.MeanDelay, s.MaxDelay, s.StddevDelay)
	fmt.Fprintf(w, "rtt p50/p90/p99 = %.3f/%.3f/%.3f ms\n", s.DelayP50, s.DelayP90, s.DelayP99)
}
