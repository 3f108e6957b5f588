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
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timestamper/go-timestamper/log"
)

// DigestLength is the number of hex characters in a SHA-256 digest.
const DigestLength = 64

var digestPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

type ErrReadFailed struct {
	Path string
	Err  error
}

func (e ErrReadFailed) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to read content: %v", e.Err)
	}

	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e ErrReadFailed) Unwrap() error {
	return e.Err
}

type ErrDigestFailed struct {
	Err error
}

func (e ErrDigestFailed) Error() string {
	return fmt.Sprintf("failed to compute digest: %v", e.Err)
}

func (e ErrDigestFailed) Unwrap() error {
	return e.Err
}

type ErrUnsupportedHash string

func (e ErrUnsupportedHash) Error() string {
	return fmt.Sprintf("unsupported hash function: %v", string(e))
}

type ErrInvalidDigest string

func (e ErrInvalidDigest) Error() string {
	return fmt.Sprintf("digest must be %d hex characters, got %q", DigestLength, string(e))
}

// FileDigest is the SHA-256 digest of a file along with a few details about the content.
type FileDigest struct {
	Path      string `json:"path" yaml:"path" jsonschema:"title=Path,description=Path of the hashed file"`
	Size      int64  `json:"size" yaml:"size" jsonschema:"title=Size,description=Number of bytes hashed"`
	MediaType string `json:"mediaType" yaml:"mediaType" jsonschema:"title=Media Type,description=Media type detected from the file content,example=application/pdf"`
	Digest    string `json:"sha256" yaml:"sha256" jsonschema:"title=SHA-256,description=Lowercase hex SHA-256 digest of the file content"`
}

// IsValidDigest reports whether s is exactly 64 hex characters. Case is ignored.
func IsValidDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// ParseDigest trims surrounding whitespace from s and validates it. The case of s is preserved.
func ParseDigest(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if !IsValidDigest(trimmed) {
		return "", ErrInvalidDigest(s)
	}

	return trimmed, nil
}

// DigestBytes hashes data with the provided hash function.
func DigestBytes(data []byte, hash crypto.Hash) ([]byte, error) {
	if !hash.Available() {
		return nil, ErrUnsupportedHash(hash.String())
	}

	hf := hash.New()
	if _, err := hf.Write(data); err != nil {
		return nil, err
	}

	return hf.Sum(nil), nil
}

// HexDigest returns the lowercase, zero padded hex encoding of the SHA-256 digest of data.
func HexDigest(data []byte) (string, error) {
	digest, err := DigestBytes(data, crypto.SHA256)
	if err != nil {
		return "", ErrDigestFailed{Err: err}
	}

	return hex.EncodeToString(digest), nil
}

// ComputeDigest reads all of r into memory and returns the hex SHA-256 digest of the raw bytes.
// Every call reads and hashes again; nothing is cached.
func ComputeDigest(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", ErrReadFailed{Err: err}
	}

	return HexDigest(data)
}

// DigestFile hashes the file at path.
func DigestFile(path string) (FileDigest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileDigest{}, ErrReadFailed{Path: path, Err: err}
	}

	digest, err := HexDigest(data)
	if err != nil {
		return FileDigest{}, err
	}

	log.Debugf("(cryptoutil) hashed %v bytes from %v", len(data), path)
	return FileDigest{
		Path:      path,
		Size:      int64(len(data)),
		MediaType: mimetype.Detect(data).String(),
		Digest:    digest,
	}, nil
}
