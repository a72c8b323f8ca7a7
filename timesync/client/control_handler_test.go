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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlHandler(t *testing.T) {
	e, _ := newTestEngine(nil, nil)
	h := e.ControlHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/control", strings.NewReader(`{"hidden":true,"initialTimeOrigin":1000}`)))
	require.Equal(t, http.StatusAccepted, w.Code)

	c := <-e.control
	require.True(t, *c.Hidden)
	require.Equal(t, 1000.0, *c.InitialTimeOrigin)
}

func TestControlHandlerRejects(t *testing.T) {
	e, _ := newTestEngine(nil, nil)
	h := e.ControlHandler()

	tests := []struct {
		method string
		body   string
		code   int
	}{
		{method: http.MethodGet, code: http.StatusMethodNotAllowed},
		{method: http.MethodPost, body: `{`, code: http.StatusBadRequest},
		{method: http.MethodPost, body: `{}`, code: http.StatusBadRequest},
		{method: http.MethodPost, body: `{"hidden":false,"extra":1}`, code: http.StatusBadRequest},
		{method: http.MethodPost, body: `{"hidden":false,"transportPort":0}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tt.method, "/control", strings.NewReader(tt.body)))
		require.Equal(t, tt.code, w.Code, tt.body)
	}
	require.Empty(t, e.control)
}
