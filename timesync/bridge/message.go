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
Package bridge relays offsets published by the client engine to WebSocket
subscribers and passes control messages from them back to the engine.

Every message is a JSON envelope:

	{"type": "offset", "payload": {"delay": 20, "timeOriginOffset": -3.5, "offset": -3.5}}
	{"type": "control", "payload": {"hidden": false}}
*/
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/binaryf0x/foxtime/timesync/client"
)

// Message types
const (
	TypeOffset  = "offset"
	TypeControl = "control"
)

// Message is an envelope for everything sent over the socket
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Controller accepts control messages
type Controller interface {
	Control(ctx context.Context, c *client.Control) error
}

func encodeOffset(o client.Offset) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: TypeOffset, Payload: payload})
}

// DecodeControl parses a control envelope
func DecodeControl(b []byte) (*client.Control, error) {
	m := Message{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if m.Type != TypeControl {
		return nil, fmt.Errorf("unexpected message type %q", m.Type)
	}
	return client.ParseControl(m.Payload)
}
