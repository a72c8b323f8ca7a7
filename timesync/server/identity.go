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
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net"
	"time"
)

// IdentityValidity is the lifetime of a self-signed certificate.
// Browsers refuse pinned certificates valid for longer than two weeks.
const IdentityValidity = 14 * 24 * time.Hour

// Identity is a certificate with its SHA-256 hash used for pinning
type Identity struct {
	Certificate tls.Certificate
	Hash        [sha256.Size]byte
}

func newIdentity(cert tls.Certificate) (*Identity, error) {
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("empty certificate chain")
	}
	return &Identity{
		Certificate: cert,
		Hash:        sha256.Sum256(cert.Certificate[0]),
	}, nil
}

// HashBase64 returns certificate hash in the form clients accept
func (i *Identity) HashBase64() string {
	return base64.StdEncoding.EncodeToString(i.Hash[:])
}

// LoadIdentity reads PEM encoded certificate and key
func LoadIdentity(certFile, keyFile string) (*Identity, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading key pair: %w", err)
	}
	return newIdentity(cert)
}

// SelfSignedIdentity generates an ECDSA P-256 certificate valid for hosts
// from now for IdentityValidity
func SelfSignedIdentity(now time.Time, hosts ...string) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "foxtime"},
		NotBefore:             now,
		NotAfter:              now.Add(IdentityValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return newIdentity(tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	})
}

// TLSConfig returns config for serving https with this identity
func (i *Identity) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{i.Certificate},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}
}
