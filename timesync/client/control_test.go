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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseControl(t *testing.T) {
	c, err := ParseControl([]byte(`{"hidden": true}`))
	require.NoError(t, err)
	require.True(t, *c.Hidden)
	require.Nil(t, c.InitialTimeOrigin)
	require.Nil(t, c.TransportPort)
	require.Nil(t, c.certHash())

	c, err = ParseControl([]byte(`{
		"hidden": false,
		"initialTimeOrigin": 1700000000000.5,
		"transportPort": 8123,
		"transportCertHash": "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
	}`))
	require.NoError(t, err)
	require.False(t, *c.Hidden)
	require.Equal(t, 1700000000000.5, *c.InitialTimeOrigin)
	require.Equal(t, 8123, *c.TransportPort)
	hash := c.certHash()
	require.Len(t, hash, 32)
	require.Equal(t, byte(31), hash[31])
}

func TestParseControlInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":        `hidden`,
		"missing hidden":  `{"transportPort": 8123}`,
		"unknown field":   `{"hidden": true, "timeOrigin": 5}`,
		"wrong type":      `{"hidden": "yes"}`,
		"port range":      `{"hidden": true, "transportPort": 0}`,
		"hash not base64": `{"hidden": true, "transportPort": 8123, "transportCertHash": "!!"}`,
		"hash length":     `{"hidden": true, "transportPort": 8123, "transportCertHash": "AAEC"}`,
		"hash no port":    `{"hidden": true, "transportCertHash": "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="}`,
	}
	for name, msg := range cases {
		_, err := ParseControl([]byte(msg))
		require.Error(t, err, name)
	}
}

func TestDecodeCertHash(t *testing.T) {
	h, err := DecodeCertHash("")
	require.NoError(t, err)
	require.Nil(t, h)
	_, err = DecodeCertHash("AAEC")
	require.Error(t, err)
}
