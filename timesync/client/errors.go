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
	"errors"
	"fmt"
)

// ConnectError means a persistent transport session could not be established
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ServerError means the server answered, but not with a usable time
type ServerError struct {
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad response from server (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

func (e *ServerError) Unwrap() error { return e.Err }

// TransportError means I/O failed in the middle of an exchange
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// errNoResponse is used when the datagram exchange timed out
var errNoResponse = errors.New("no response to datagram")

// errSessionClosed is returned to a probe waiting on a session that went away
var errSessionClosed = errors.New("session closed")
