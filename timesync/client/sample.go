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

// Transports a sample can come from
const (
	TransportDatagram = "datagram"
	TransportHTTP     = "http"
)

// Sample is a single measurement. Request and response times are monotonic ms on the
// prober's Timebase, ServerTime is epoch ms.
type Sample struct {
	RequestSent      float64
	ResponseReceived float64
	ServerTime       float64
	Transport        string
}

// Delay returns round trip time in ms
func (s *Sample) Delay() float64 {
	return s.ResponseReceived - s.RequestSent
}

// TimeOrigin estimates the value which, added to monotonic time, gives server time.
// Outbound and inbound legs are assumed to take equally long.
func (s *Sample) TimeOrigin() float64 {
	return ((s.ServerTime - s.RequestSent) + (s.ServerTime - s.ResponseReceived)) / 2
}
