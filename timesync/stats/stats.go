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

package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// probe stats prefixes, followed by transport name and result
const (
	ProbeOKPrefix    = "foxtime.probe.ok."
	ProbeErrorPrefix = "foxtime.probe.error."
)

// Stat is a representation of a monitoring struct for the sync engine
type Stat struct {
	Server           string  `json:"server"`
	Transport        string  `json:"transport"`
	ConnectionState  string  `json:"connection_state"`
	Phase            string  `json:"phase"`
	Hidden           bool    `json:"hidden"`
	Samples          int     `json:"samples"`
	Delay            float64 `json:"delay"`
	TimeOrigin       float64 `json:"time_origin"`
	TimeOriginOffset float64 `json:"time_origin_offset"`
	Offset           float64 `json:"offset"`
	IngressTime      int64   `json:"ingress_time"`
	Error            string  `json:"error"`
}

// Counters is various counters exported by the sync engine
type Counters map[string]int64

// ProbeStats returns two maps: transport to counter, successful and failed probes
func (c Counters) ProbeStats() (ok map[string]uint64, failed map[string]uint64) {
	ok = map[string]uint64{}
	failed = map[string]uint64{}
	for k, v := range c {
		if strings.HasPrefix(k, ProbeOKPrefix) {
			ok[strings.TrimPrefix(k, ProbeOKPrefix)] = uint64(v)
		}
		if strings.HasPrefix(k, ProbeErrorPrefix) {
			failed[strings.TrimPrefix(k, ProbeErrorPrefix)] = uint64(v)
		}
	}
	return
}

// SysStats return sys stats from counters
func (c Counters) SysStats() map[string]int64 {
	res := map[string]int64{}
	for k, v := range c {
		if strings.HasPrefix(k, "foxtime.") {
			continue
		}
		res[k] = v
	}
	return res
}

func fetch(url string, v any) error {
	c := http.Client{
		Timeout: time.Second * 2,
	}

	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// FetchStats returns populated Stat structure fetched from the url
func FetchStats(url string) (*Stat, error) {
	s := &Stat{}
	if err := fetch(url, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FetchCounters returns counters map fetched from the url
func FetchCounters(url string) (Counters, error) {
	counters := make(Counters)
	err := fetch(fmt.Sprintf("%s/counters", url), &counters)
	return counters, err
}

// FetchProbeStats fetches all counters and then returns two maps: transport to counter, successful and failed
func FetchProbeStats(url string) (ok map[string]uint64, failed map[string]uint64, err error) {
	counters, err := FetchCounters(url)
	if err != nil {
		return nil, nil, err
	}
	ok, failed = counters.ProbeStats()
	return ok, failed, nil
}

// FetchSysStats fetches all counters and return sys stats from them
func FetchSysStats(url string) (map[string]int64, error) {
	counters, err := FetchCounters(url)
	if err != nil {
		return nil, err
	}
	return counters.SysStats(), nil
}
