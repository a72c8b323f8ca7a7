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

package server

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelfSignedIdentity(t *testing.T) {
	now := time.Unix(1700000000, 0).In(time.Local)
	id, err := SelfSignedIdentity(now, "localhost", "127.0.0.1")
	require.NoError(t, err)

	require.Len(t, id.Certificate.Certificate, 1)
	require.Equal(t, sha256.Sum256(id.Certificate.Certificate[0]), id.Hash)

	leaf, err := x509.ParseCertificate(id.Certificate.Certificate[0])
	require.NoError(t, err)
	require.True(t, now.Equal(leaf.NotBefore), "not before %v", leaf.NotBefore)
	require.True(t, now.Add(IdentityValidity).Equal(leaf.NotAfter), "not after %v", leaf.NotAfter)
	require.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.True(t, leaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
	require.Equal(t, x509.ECDSA, leaf.PublicKeyAlgorithm)

	h, err := base64.StdEncoding.DecodeString(id.HashBase64())
	require.NoError(t, err)
	require.Equal(t, id.Hash[:], h)
}

func TestSelfSignedIdentityUnique(t *testing.T) {
	now := time.Now()
	a, err := SelfSignedIdentity(now)
	require.NoError(t, err)
	b, err := SelfSignedIdentity(now)
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestLoadIdentity(t *testing.T) {
	generated, err := SelfSignedIdentity(time.Now(), "localhost")
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: generated.Certificate.Certificate[0]})
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	keyDER, err := x509.MarshalECPrivateKey(generated.Certificate.PrivateKey.(*ecdsa.PrivateKey))
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))

	loaded, err := LoadIdentity(certFile, keyFile)
	require.NoError(t, err)
	require.Equal(t, generated.Hash, loaded.Hash)
	require.Equal(t, generated.HashBase64(), loaded.HashBase64())
}

func TestLoadIdentityMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadIdentity(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
	require.ErrorContains(t, err, "loading key pair")
}
