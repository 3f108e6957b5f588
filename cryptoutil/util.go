// Copyright 2021 The Witness Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cryptoutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

const PemTypePublicKey = "PUBLIC KEY"

type ErrUnsupportedKeyType struct {
	t string
}

func (e ErrUnsupportedKeyType) Error() string {
	return fmt.Sprintf("unsupported key type: %v", e.t)
}

type ErrInvalidPemBlock struct{}

func (e ErrInvalidPemBlock) Error() string {
	return "invalid pem block"
}

// PublicPemBytes encodes pub as a PKIX "PUBLIC KEY" PEM block.
func PublicPemBytes(pub interface{}) ([]byte, error) {
	keyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: PemTypePublicKey, Bytes: keyBytes})
	if pemBytes == nil {
		return nil, errors.New("failed to encode public key to pem")
	}

	return pemBytes, nil
}

// GeneratePublicKeyID returns the hex digest of the PEM encoded public key.
func GeneratePublicKeyID(pub interface{}, hash crypto.Hash) (string, error) {
	pemBytes, err := PublicPemBytes(pub)
	if err != nil {
		return "", err
	}

	digest, err := DigestBytes(pemBytes, hash)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(digest), nil
}

// TryParsePublicKey parses the first PEM block in data as a PKIX public key.
func TryParsePublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPemBlock{}
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return key, nil
}

// NewVerifierFromPEM builds a SHA-256 ECDSA verifier from a PEM encoded public key.
func NewVerifierFromPEM(data []byte) (*ECDSAVerifier, error) {
	key, err := TryParsePublicKey(data)
	if err != nil {
		return nil, err
	}

	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrUnsupportedKeyType{t: fmt.Sprintf("%T", key)}
	}

	return NewECDSAVerifier(pub, crypto.SHA256), nil
}
