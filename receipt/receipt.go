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

package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timestamper/go-timestamper/cryptoutil"
	"github.com/timestamper/go-timestamper/log"
	"github.com/timestamper/go-timestamper/timestamp"
	"go.yaml.in/yaml/v3"
)

// Receipt is a timestamp saved for later, together with what is needed to check it without
// asking the authority again.
type Receipt struct {
	timestamp.Result `yaml:",inline"`

	Authority string                 `json:"authority" yaml:"authority" jsonschema:"title=Authority,description=Base URL of the authority that issued the timestamp"`
	PublicKey string                 `json:"public_key,omitempty" yaml:"public_key,omitempty" jsonschema:"title=Public Key,description=PEM encoded public key of the authority at the time of issue"`
	File      *cryptoutil.FileDigest `json:"file,omitempty" yaml:"file,omitempty" jsonschema:"title=File,description=The file the hash was computed from"`
}

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

type ErrUnsupportedFormat string

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported receipt format: %q (use .json, .yaml or .yml)", string(e))
}

type ErrNoPublicKey struct{}

func (e ErrNoPublicKey) Error() string {
	return "no trusted public key to verify the receipt with"
}

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", ErrUnsupportedFormat(ext)
	}
}

func Marshal(r Receipt, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	default:
		return nil, ErrUnsupportedFormat(format)
	}
}

func Unmarshal(data []byte, format Format) (Receipt, error) {
	var r Receipt
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatYAML:
		err = yaml.Unmarshal(data, &r)
	default:
		return r, ErrUnsupportedFormat(format)
	}

	if err != nil {
		return Receipt{}, fmt.Errorf("failed to decode %v receipt: %w", format, err)
	}

	return r, nil
}

// Write saves r to path, encoded according to the extension of path.
func Write(path string, r Receipt) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := Marshal(r, format)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}

	log.Debugf("(receipt) wrote %v receipt to %v", format, path)
	return nil
}

func Read(path string) (Receipt, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Receipt{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to read receipt: %w", err)
	}

	return Unmarshal(data, format)
}

// ErrKeyUnavailable means the trusted public key could not be obtained, so the receipt could
// not be checked.
type ErrKeyUnavailable struct {
	Err error
}

func (e ErrKeyUnavailable) Error() string {
	return fmt.Sprintf("public key unverified: %v", e.Err)
}

func (e ErrKeyUnavailable) Unwrap() error {
	return e.Err
}

// StaticKey is a KeyProvider for a public key the caller already trusts, such as one read
// from a file.
type StaticKey string

func (k StaticKey) PublicKey(context.Context) (timestamp.PublicKey, error) {
	return timestamp.PublicKey{PublicKey: string(k)}, nil
}

// Verify checks the receipt's signature locally with the key from keys. The key recorded in
// the receipt is never trusted on its own: keys must come from a trusted source, and a receipt
// that recorded a different key fails the check.
//
// A receipt that fails a check is reported through the returned Verification; err is only set
// when the check could not be carried out.
func Verify(ctx context.Context, r Receipt, keys timestamp.KeyProvider) (timestamp.Verification, error) {
	if keys == nil {
		return timestamp.Verification{}, ErrNoPublicKey{}
	}

	pk, err := keys.PublicKey(ctx)
	if err != nil {
		return timestamp.Verification{}, ErrKeyUnavailable{Err: err}
	}

	if strings.TrimSpace(pk.PublicKey) == "" {
		return timestamp.Verification{}, ErrNoPublicKey{}
	}

	if r.PublicKey != "" && strings.TrimSpace(r.PublicKey) != strings.TrimSpace(pk.PublicKey) {
		return invalid("receipt was issued under a different public key"), nil
	}

	verifier, err := cryptoutil.NewVerifierFromPEM([]byte(pk.PublicKey))
	if err != nil {
		return timestamp.Verification{}, fmt.Errorf("failed to load public key: %w", err)
	}

	if v, ok := CheckMessage(r); !ok {
		return v, nil
	}

	err = verifier.VerifyMessage(r.ExactMessage, r.Signature)
	var encErr cryptoutil.ErrSignatureEncoding
	switch {
	case errors.As(err, &encErr):
		return invalid("Signature must be base64-encoded"), nil
	case err != nil:
		log.Debugf("(receipt) signature check failed: %w", err)
		return invalid("Signature verification failed"), nil
	}

	return timestamp.Verification{Valid: true}, nil
}

// CheckMessage makes sure the signed message is "<hash>|<seconds>" for this receipt's hash,
// file digest and timestamp. It does not look at the signature.
func CheckMessage(r Receipt) (timestamp.Verification, bool) {
	idx := strings.LastIndex(r.ExactMessage, "|")
	if idx < 0 {
		return invalid("exact message is not of the form <hash>|<timestamp>"), false
	}

	signed := r.ExactMessage[:idx]
	if r.Hash != "" && signed != r.Hash {
		return invalid("exact message does not cover the receipt's hash"), false
	}

	if r.File != nil && !strings.EqualFold(signed, r.File.Digest) {
		return invalid("exact message does not cover the receipt's file"), false
	}

	secs, err := strconv.ParseFloat(r.ExactMessage[idx+1:], 64)
	if err != nil || secs != r.Timestamp {
		return invalid("exact message does not match the receipt's timestamp"), false
	}

	return timestamp.Verification{}, true
}

func invalid(reason string) timestamp.Verification {
	return timestamp.Verification{Valid: false, Error: reason}
}
