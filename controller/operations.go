// Copyright 2025 The Witness Contributors
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

package controller

import (
	"context"
	"errors"
	"strings"

	"github.com/timestamper/go-timestamper/authority"
	"github.com/timestamper/go-timestamper/cryptoutil"
	"github.com/timestamper/go-timestamper/timestamp"
)

// Messages shown to the user.
const (
	MsgNoFile             = "No file selected."
	MsgInvalidHash        = "Hash must be a 64-character hex string."
	MsgMessageRequired    = "Message is required."
	MsgSignatureRequired  = "Signature is required."
	MsgNetworkError       = "Network error."
	MsgReadFailed         = "File reading failed."
	MsgHashFailed         = "Hashing failed."
	MsgPublicKeyFailed    = "Failed to fetch public key."
	MsgTimestampFailed    = "Failed to get timestamp."
	MsgVerificationFailed = "Verification failed."
)

type (
	HashController      = Controller[string, cryptoutil.FileDigest]
	TimestampController = Controller[string, timestamp.Result]
	VerifyController    = Controller[VerifyInput, timestamp.Verification]
	PublicKeyController = Controller[struct{}, timestamp.PublicKey]
)

type VerifyInput struct {
	Message   string
	Signature string
}

// ValidateFile requires a file to have been selected.
func ValidateFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrValidation{Message: MsgNoFile}
	}

	return path, nil
}

// ValidateHash trims the input and requires 64 hex characters.
func ValidateHash(hash string) (string, error) {
	parsed, err := cryptoutil.ParseDigest(hash)
	if err != nil {
		return "", ErrValidation{Message: MsgInvalidHash}
	}

	return parsed, nil
}

// ValidateVerifyInput requires a message and a signature that are not blank. The values are
// passed on untrimmed since the message must match what was signed byte for byte.
func ValidateVerifyInput(in VerifyInput) (VerifyInput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return in, ErrValidation{Message: MsgMessageRequired}
	}

	if strings.TrimSpace(in.Signature) == "" {
		return in, ErrValidation{Message: MsgSignatureRequired}
	}

	return in, nil
}

// DescribeAuthorityError maps authority errors to user messages, falling back to def when the
// authority did not say what went wrong.
func DescribeAuthorityError(def string) Describer {
	return func(err error) string {
		if authority.IsNetworkError(err) {
			return MsgNetworkError
		}

		if msg, ok := authority.ProtocolMessage(err); ok && msg != "" {
			return msg
		}

		return def
	}
}

func DescribeHashError(err error) string {
	var digestErr cryptoutil.ErrDigestFailed
	if errors.As(err, &digestErr) {
		return MsgHashFailed
	}

	return MsgReadFailed
}

func NewHashController() *HashController {
	return New("hash",
		func(_ context.Context, path string) (cryptoutil.FileDigest, error) {
			return cryptoutil.DigestFile(path)
		},
		WithValidator[string, cryptoutil.FileDigest](ValidateFile),
		WithDescriber[string, cryptoutil.FileDigest](DescribeHashError),
	)
}

func NewTimestampController(ts timestamp.Timestamper) *TimestampController {
	return New("timestamp",
		ts.Timestamp,
		WithValidator[string, timestamp.Result](ValidateHash),
		WithDescriber[string, timestamp.Result](DescribeAuthorityError(MsgTimestampFailed)),
	)
}

func NewVerifyController(v timestamp.TimestampVerifier) *VerifyController {
	return New("verify",
		func(ctx context.Context, in VerifyInput) (timestamp.Verification, error) {
			return v.Verify(ctx, in.Message, in.Signature)
		},
		WithValidator[VerifyInput, timestamp.Verification](ValidateVerifyInput),
		WithDescriber[VerifyInput, timestamp.Verification](DescribeAuthorityError(MsgVerificationFailed)),
	)
}

func NewPublicKeyController(kp timestamp.KeyProvider) *PublicKeyController {
	return New("public-key",
		func(ctx context.Context, _ struct{}) (timestamp.PublicKey, error) {
			return kp.PublicKey(ctx)
		},
		WithDescriber[struct{}, timestamp.PublicKey](DescribeAuthorityError(MsgPublicKeyFailed)),
	)
}
