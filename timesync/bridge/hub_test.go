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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sync.Mutex
	controls []*client.Control
}

func (r *recorder) Control(_ context.Context, c *client.Control) error {
	r.Lock()
	defer r.Unlock()
	r.controls = append(r.controls, c)
	return nil
}

func (r *recorder) received() []*client.Control {
	r.Lock()
	defer r.Unlock()
	return append([]*client.Control(nil), r.controls...)
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOffset(t *testing.T, conn *websocket.Conn) client.Offset {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	m := Message{}
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, TypeOffset, m.Type)
	o := client.Offset{}
	require.NoError(t, json.Unmarshal(m.Payload, &o))
	return o
}

func TestSubscriberLatestWins(t *testing.T) {
	s := &subscriber{out: make(chan []byte, 1)}
	s.send([]byte("a"))
	s.send([]byte("b"))
	s.send([]byte("c"))
	require.Equal(t, []byte("c"), <-s.out)
	require.Empty(t, s.out)
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(&recorder{})
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	want := client.Offset{Delay: 20, TimeOriginOffset: -3.5, Offset: -3.25}
	h.Broadcast(want)
	require.Equal(t, want, readOffset(t, conn))
}

func TestHubLastOffsetOnSubscribe(t *testing.T) {
	h := NewHub(&recorder{})
	want := client.Offset{Delay: 12, TimeOriginOffset: 1, Offset: 1}
	h.Broadcast(client.Offset{Delay: 1})
	h.Broadcast(want)

	conn := dial(t, h)
	require.Equal(t, want, readOffset(t, conn))
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(&recorder{})
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return h.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubControl(t *testing.T) {
	rec := &recorder{}
	h := NewHub(rec)
	conn := dial(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"offset","payload":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"hidden":true,"bogus":1}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"hidden":true,"initialTimeOrigin":1000.5}}`)))

	require.Eventually(t, func() bool { return len(rec.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	c := rec.received()[0]
	require.True(t, *c.Hidden)
	require.Equal(t, 1000.5, *c.InitialTimeOrigin)
}

func TestDecodeControl(t *testing.T) {
	c, err := DecodeControl([]byte(`{"type":"control","payload":{"hidden":false,"transportPort":4433}}`))
	require.NoError(t, err)
	require.False(t, *c.Hidden)
	require.Equal(t, 4433, *c.TransportPort)

	_, err = DecodeControl([]byte(`{"type":"control","payload":{}}`))
	require.Error(t, err)

	_, err = DecodeControl([]byte(`{"type":"hello","payload":{}}`))
	require.ErrorContains(t, err, `unexpected message type "hello"`)
}
