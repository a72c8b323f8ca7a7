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

package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeDeadline  = 10 * time.Second
	pingPeriod     = 30 * time.Second
	controlTimeout = 5 * time.Second
)

type subscriber struct {
	out chan []byte
}

// send queues b dropping whatever the subscriber has not picked up yet
func (s *subscriber) send(b []byte) {
	for {
		select {
		case s.out <- b:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

// Hub fans offsets out to WebSocket subscribers
type Hub struct {
	ctl      Controller
	upgrader websocket.Upgrader

	mux  sync.Mutex
	subs map[*subscriber]struct{}
	last []byte
}

// NewHub returns a Hub forwarding control messages to ctl
func NewHub(ctl Controller) *Hub {
	return &Hub{
		ctl: ctl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: map[*subscriber]struct{}{},
	}
}

// Broadcast sends o to all subscribers. Slow subscribers only get the latest offset.
func (h *Hub) Broadcast(o client.Offset) {
	b, err := encodeOffset(o)
	if err != nil {
		log.Errorf("encoding offset: %v", err)
		return
	}
	h.mux.Lock()
	defer h.mux.Unlock()
	h.last = b
	for s := range h.subs {
		s.send(b)
	}
}

// Subscribers returns number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{out: make(chan []byte, 1)}
	h.mux.Lock()
	defer h.mux.Unlock()
	h.subs[s] = struct{}{}
	if h.last != nil {
		s.out <- h.last
	}
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mux.Lock()
	defer h.mux.Unlock()
	delete(h.subs, s)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	log.Debugf("websocket subscriber %s connected", r.RemoteAddr)

	s := h.subscribe()
	defer h.unsubscribe(s)

	done := make(chan struct{})
	defer close(done)
	go h.writer(conn, s, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warningf("websocket subscriber %s: %v", r.RemoteAddr, err)
			}
			log.Debugf("websocket subscriber %s disconnected", r.RemoteAddr)
			return
		}
		h.handleMessage(r, data)
	}
}

func (h *Hub) handleMessage(r *http.Request, data []byte) {
	c, err := DecodeControl(data)
	if err != nil {
		log.Warningf("ignoring message from %s: %v", r.RemoteAddr, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()
	if err := h.ctl.Control(ctx, c); err != nil {
		log.Warningf("control from %s rejected: %v", r.RemoteAddr, err)
	}
}

func (h *Hub) writer(conn *websocket.Conn, s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case b := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debugf("websocket write: %v", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
