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
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

type ErrVerifyFailed struct{}

func (e ErrVerifyFailed) Error() string {
	return "verification failed"
}

// ErrSignatureEncoding means a signature was not valid standard base64.
type ErrSignatureEncoding struct {
	Err error
}

func (e ErrSignatureEncoding) Error() string {
	return fmt.Sprintf("signature must be base64-encoded: %v", e.Err)
}

func (e ErrSignatureEncoding) Unwrap() error {
	return e.Err
}

// ECDSASigner signs the way the authority does: ASN.1 DER over the hash of the message, with
// the signature carried as standard base64.
type ECDSASigner struct {
	priv *ecdsa.PrivateKey
	hash crypto.Hash
}

func NewECDSASigner(priv *ecdsa.PrivateKey, hash crypto.Hash) *ECDSASigner {
	return &ECDSASigner{priv: priv, hash: hash}
}

func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	digest, err := DigestBytes(data, s.hash)
	if err != nil {
		return nil, err
	}

	return ecdsa.SignASN1(rand.Reader, s.priv, digest)
}

// SignMessage signs msg and returns the base64 signature.
func (s *ECDSASigner) SignMessage(msg string) (string, error) {
	sig, err := s.Sign([]byte(msg))
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

func (s *ECDSASigner) Verifier() *ECDSAVerifier {
	return NewECDSAVerifier(&s.priv.PublicKey, s.hash)
}

// ECDSAVerifier checks signatures made by an ECDSASigner, typically after loading the
// authority's PEM key with NewVerifierFromPEM.
type ECDSAVerifier struct {
	pub  *ecdsa.PublicKey
	hash crypto.Hash
}

func NewECDSAVerifier(pub *ecdsa.PublicKey, hash crypto.Hash) *ECDSAVerifier {
	return &ECDSAVerifier{pub: pub, hash: hash}
}

func (v *ECDSAVerifier) Verify(data []byte, sig []byte) error {
	digest, err := DigestBytes(data, v.hash)
	if err != nil {
		return err
	}

	if ecdsa.VerifyASN1(v.pub, digest, sig) {
		return nil
	}

	return ErrVerifyFailed{}
}

// VerifyMessage decodes the base64 signature and checks it against msg.
func (v *ECDSAVerifier) VerifyMessage(msg, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrSignatureEncoding{Err: err}
	}

	return v.Verify([]byte(msg), sig)
}

// KeyID is the hex SHA-256 of the PEM encoded public key.
func (v *ECDSAVerifier) KeyID() (string, error) {
	return GeneratePublicKeyID(v.pub, v.hash)
}

// PublicPEM returns the public key as a PEM SubjectPublicKeyInfo block.
func (v *ECDSAVerifier) PublicPEM() ([]byte, error) {
	return PublicPemBytes(v.pub)
}
