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

//go:generate mockgen -source prober.go -destination prober_mock_test.go -package client -copyright_file ../../license_header.txt

import (
	"context"
)

// Prober performs one round trip time probe
type Prober interface {
	Probe(ctx context.Context) (*Sample, error)
	Close() error
}

// ConnectionState is the state of a persistent transport session
type ConnectionState int32

// Connection states
const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateFailed
)

var connectionStateToString = map[ConnectionState]string{
	StateIdle:       "IDLE",
	StateConnecting: "CONNECTING",
	StateOpen:       "OPEN",
	StateFailed:     "FAILED",
}

func (s ConnectionState) String() string {
	if v, ok := connectionStateToString[s]; ok {
		return v
	}
	return "UNKNOWN"
}
