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
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/binaryf0x/foxtime/timesync/protocol"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
	log "github.com/sirupsen/logrus"
)

// keepAlivePeriod keeps the session open between probes that are a long interval apart
const keepAlivePeriod = 15 * time.Second

// session is the part of *webtransport.Session used by the prober
type session interface {
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	CloseWithError(code webtransport.SessionErrorCode, msg string) error
}

type dialFunc func(ctx context.Context, url string) (session, error)

// response is a parsed datagram stamped with the time it was received
type response struct {
	protocol.Response
	received float64
}

// datagramConn is one session and the receive loop bound to it
type datagramConn struct {
	sess      session
	tb        *Timebase
	responses chan response
	// closed once the session is unusable, err holds the cause
	done   chan struct{}
	once   sync.Once
	err    error
	cancel context.CancelFunc
	// closed when receive loop exits
	exited chan struct{}
}

func newDatagramConn(sess session, tb *Timebase) *datagramConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &datagramConn{
		sess:      sess,
		tb:        tb,
		responses: make(chan response, 4),
		done:      make(chan struct{}),
		cancel:    cancel,
		exited:    make(chan struct{}),
	}
	go c.receiveLoop(ctx)
	return c
}

// fail invalidates the connection. Only the first call has an effect, so whichever of
// send and receive path fails first decides the error.
func (c *datagramConn) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
		c.cancel()
		if cerr := c.sess.CloseWithError(0, ""); cerr != nil {
			log.Debugf("closing datagram session: %v", cerr)
		}
	})
}

func (c *datagramConn) failed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *datagramConn) receiveLoop(ctx context.Context) {
	defer close(c.exited)
	for {
		b, err := c.sess.ReceiveDatagram(ctx)
		if err != nil {
			c.fail(&TransportError{Op: "receive", Err: err})
			return
		}
		r := response{received: c.tb.Mono()}
		if err := r.UnmarshalBinary(b); err != nil {
			log.Debugf("discarding datagram: %v", err)
			continue
		}
		select {
		case c.responses <- r:
		default:
			log.Debugf("discarding unsolicited datagram")
		}
	}
}

// DatagramProber measures time over a WebTransport session.
// The session is opened on first use and again after any failure.
type DatagramProber struct {
	url   string
	tb    *Timebase
	dial  dialFunc
	state atomic.Int32

	mux  sync.Mutex
	conn *datagramConn
}

// NewDatagramProber returns a prober for WebTransport session at sessionURL.
// When certHash is set, the server certificate must have this SHA-256 hash and is
// not verified otherwise.
func NewDatagramProber(sessionURL string, certHash []byte, tb *Timebase) (*DatagramProber, error) {
	if len(certHash) != 0 && len(certHash) != protocol.CertHashSize {
		return nil, fmt.Errorf("cert hash must be %d bytes, got %d", protocol.CertHashSize, len(certHash))
	}
	return newDatagramProber(sessionURL, tb, webTransportDial(certHash)), nil
}

func newDatagramProber(sessionURL string, tb *Timebase, dial dialFunc) *DatagramProber {
	return &DatagramProber{url: sessionURL, tb: tb, dial: dial}
}

// PinnedTLSConfig returns tls config accepting only the certificate with given SHA-256 hash
func PinnedTLSConfig(certHash []byte) *tls.Config {
	return &tls.Config{
		// chain is checked by VerifyPeerCertificate below
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("no certificate presented")
			}
			sum := sha256.Sum256(rawCerts[0])
			if !bytes.Equal(sum[:], certHash) {
				return fmt.Errorf("certificate hash mismatch")
			}
			return nil
		},
	}
}

func webTransportDial(certHash []byte) dialFunc {
	tlsConf := &tls.Config{}
	if len(certHash) != 0 {
		tlsConf = PinnedTLSConfig(certHash)
	}
	d := &webtransport.Dialer{
		TLSClientConfig: tlsConf,
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
			KeepAlivePeriod: keepAlivePeriod,
		},
	}
	return func(ctx context.Context, url string) (session, error) {
		rsp, sess, err := d.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		log.Debugf("webtransport session to %s: %s", url, rsp.Status)
		return sess, nil
	}
}

// State returns current connection state
func (p *DatagramProber) State() ConnectionState {
	return ConnectionState(p.state.Load())
}

func (p *DatagramProber) setState(s ConnectionState) {
	p.state.Store(int32(s))
}

// connect returns an open connection, dialing a new one if needed
func (p *DatagramProber) connect(ctx context.Context) (*datagramConn, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.conn != nil && !p.conn.failed() {
		return p.conn, nil
	}
	p.conn = nil
	p.setState(StateConnecting)
	sess, err := p.dial(ctx, p.url)
	if err != nil {
		p.setState(StateFailed)
		return nil, &ConnectError{Addr: p.url, Err: err}
	}
	p.conn = newDatagramConn(sess, p.tb)
	p.setState(StateOpen)
	log.Infof("datagram session to %s established", p.url)
	return p.conn, nil
}

// drop tears c down and forgets it, unless it has already been superseded
func (p *DatagramProber) drop(c *datagramConn, err error) {
	c.fail(err)
	p.mux.Lock()
	if p.conn == c {
		p.conn = nil
		p.setState(StateIdle)
	}
	p.mux.Unlock()
}

// Probe sends one datagram and waits for its echo until ctx is done
func (p *DatagramProber) Probe(ctx context.Context) (*Sample, error) {
	c, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	// responses to earlier probes that timed out are not interesting any more
	for len(c.responses) > 0 {
		<-c.responses
	}

	sent := p.tb.Mono()
	b, _ := (&protocol.Request{SentTime: sent}).MarshalBinary()
	if err := c.sess.SendDatagram(b); err != nil {
		terr := &TransportError{Op: "send", Err: err}
		p.drop(c, terr)
		return nil, terr
	}

	for {
		select {
		case r := <-c.responses:
			if r.SentTime != sent {
				log.Debugf("ignoring response to %.3f, waiting for %.3f", r.SentTime, sent)
				continue
			}
			return &Sample{
				RequestSent:      sent,
				ResponseReceived: r.received,
				ServerTime:       r.ServerTime * 1000,
				Transport:        TransportDatagram,
			}, nil
		case <-c.done:
			p.drop(c, c.err)
			return nil, c.err
		case <-ctx.Done():
			terr := &TransportError{Op: "receive", Err: fmt.Errorf("%w: %w", errNoResponse, ctx.Err())}
			p.drop(c, terr)
			return nil, terr
		}
	}
}

// Close tears down the session and waits for its receive loop to exit
func (p *DatagramProber) Close() error {
	p.mux.Lock()
	c := p.conn
	p.conn = nil
	p.setState(StateIdle)
	p.mux.Unlock()
	if c != nil {
		c.fail(&TransportError{Op: "close", Err: errSessionClosed})
		<-c.exited
	}
	return nil
}
