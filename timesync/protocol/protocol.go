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

/*
Package protocol implements the httpstime wire format.

A client learns the server time either from the x-httpstime response header of a
plain HTTP request to the well-known path, or over a WebTransport session on the same
path by exchanging small datagrams:

	request:  | sent time, ms, float64 LE |
	response: | echoed sent time, 8 bytes | server time, s, float64 LE |
*/
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WellKnownPath is the path time is served on, over HTTP and WebTransport
const WellKnownPath = "/.well-known/time"

// BootstrapPath serves the initial server time and WebTransport parameters
const BootstrapPath = WellKnownPath + "/bootstrap"

// TimeHeader carries the server time in seconds
const TimeHeader = "x-httpstime"

// DefaultPort is the port both HTTP and WebTransport listen on by default
const DefaultPort = 8123

// Datagram sizes
const (
	RequestSize  = 8
	ResponseSize = 16
)

// CertHashSize is the size of SHA-256 certificate hash used for pinning
const CertHashSize = 32

// ErrShortDatagram is returned when datagram is too small to be parsed
var ErrShortDatagram = fmt.Errorf("datagram too short")

// ErrNonFinite is returned when datagram carries NaN or infinite timestamp
var ErrNonFinite = fmt.Errorf("non-finite timestamp")

// Request is a datagram sent by the client
type Request struct {
	SentTime float64 // ms, on the client's monotonic clock
}

// MarshalBinary encodes Request
func (r *Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestSize)
	binary.LittleEndian.PutUint64(b, math.Float64bits(r.SentTime))
	return b, nil
}

// UnmarshalBinary decodes Request. Trailing bytes are ignored.
func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) < RequestSize {
		return fmt.Errorf("%w: got %d bytes, want at least %d", ErrShortDatagram, len(b), RequestSize)
	}
	r.SentTime = math.Float64frombits(binary.LittleEndian.Uint64(b))
	return nil
}

// Response is a datagram sent by the server
type Response struct {
	SentTime   float64 // echoed from Request
	ServerTime float64 // seconds since epoch
}

// MarshalBinary encodes Response
func (r *Response) MarshalBinary() ([]byte, error) {
	b := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint64(b, math.Float64bits(r.SentTime))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(r.ServerTime))
	return b, nil
}

// UnmarshalBinary decodes Response. Trailing bytes are ignored.
func (r *Response) UnmarshalBinary(b []byte) error {
	if len(b) < ResponseSize {
		return fmt.Errorf("%w: got %d bytes, want at least %d", ErrShortDatagram, len(b), ResponseSize)
	}
	sent := math.Float64frombits(binary.LittleEndian.Uint64(b))
	server := math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
	if !finite(sent) || !finite(server) {
		return fmt.Errorf("%w: sent %v, server %v", ErrNonFinite, sent, server)
	}
	r.SentTime = sent
	r.ServerTime = server
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AppendResponse builds a response to the request datagram req: the first 8 bytes of
// the request are echoed verbatim, followed by now in seconds.
func AppendResponse(dst, req []byte, now time.Time) ([]byte, error) {
	if len(req) < RequestSize {
		return dst, fmt.Errorf("%w: got %d bytes, want at least %d", ErrShortDatagram, len(req), RequestSize)
	}
	dst = append(dst, req[:RequestSize]...)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(Seconds(now))), nil
}

// Seconds returns t as fractional seconds since epoch
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FormatTime formats t as a TimeHeader value
func FormatTime(t time.Time) string {
	return strconv.FormatFloat(Seconds(t), 'f', 6, 64)
}

// ParseTime parses TimeHeader value into seconds since epoch
func ParseTime(v string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("missing %s header", TimeHeader)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s header %q: %w", TimeHeader, v, err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid %s header %q", TimeHeader, v)
	}
	return secs, nil
}

// SecondsToTime converts fractional seconds since epoch into time.Time
func SecondsToTime(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// NormalizeURL turns user input like "example.com:8123" into a full time URL.
// https is assumed when no scheme is given and the well-known path is appended
// unless already present.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty server address")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	if !strings.HasSuffix(u.Path, WellKnownPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + WellKnownPath
	}
	return u.String(), nil
}

// SessionURL returns WebTransport session URL for the host of serverURL and port
func SessionURL(serverURL string, port int) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", serverURL)
	}
	return (&url.URL{
		Scheme: "https",
		Host:   net.JoinHostPort(u.Hostname(), strconv.Itoa(port)),
		Path:   WellKnownPath,
	}).String(), nil
}

// Bootstrap is served on BootstrapPath. It lets a client start from a rough time
// estimate and learn WebTransport parameters before its first measurement.
type Bootstrap struct {
	ServerTime           float64 `json:"serverTime"` // seconds since epoch
	WebTransportPort     int     `json:"webTransportPort,omitempty"`
	WebTransportCertHash string  `json:"webTransportCertHash,omitempty"`
}
