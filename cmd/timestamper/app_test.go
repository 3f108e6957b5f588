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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timestamper/go-timestamper/authority"
	"github.com/timestamper/go-timestamper/authority/authoritytest"
	"github.com/timestamper/go-timestamper/receipt"
	"github.com/timestamper/go-timestamper/timestamp"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func startAuthority(t *testing.T, opts ...authoritytest.Option) (*authoritytest.Authority, string) {
	t.Helper()
	opts = append([]authoritytest.Option{authoritytest.WithClock(func() time.Time { return time.Unix(1700000000, 0) })}, opts...)
	a, err := authoritytest.New(opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv.URL
}

// execute runs the CLI without reading any config file from the home directory.
func execute(t *testing.T, url string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--config=", "--authority-url", url}, args[1:]...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: timestamper COMMAND")

	stderr.Reset()
	assert.Equal(t, exitUsage, run(context.Background(), []string{"sign"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "sign"`)

	assert.Equal(t, exitOK, run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "public-key")

	stderr.Reset()
	assert.Equal(t, exitOK, run(context.Background(), []string{"timestamp", "--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--file")
}

func TestHashCommand(t *testing.T) {
	hello := writeFile(t, "hello.txt", "hello")
	missing := filepath.Join(t.TempDir(), "missing.txt")

	code, stdout, stderr := execute(t, "http://localhost:5000", "hash", hello, missing)
	assert.Equal(t, exitFailed, code)
	assert.Equal(t, helloDigest+"  "+hello+"\n", stdout)
	assert.Contains(t, stderr, missing+": File reading failed.")

	code, _, stderr = execute(t, "http://localhost:5000", "hash")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "No file selected.")
}

func TestHashCommandJSON(t *testing.T) {
	hello := writeFile(t, "hello.txt", "hello")

	code, stdout, _ := execute(t, "http://localhost:5000", "hash", "-o", "json", hello)
	require.Equal(t, exitOK, code)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, helloDigest, out[0]["sha256"])
	assert.Equal(t, hello, out[0]["path"])
	assert.EqualValues(t, 5, out[0]["size"])
}

func TestTimestampCommand(t *testing.T) {
	a, url := startAuthority(t)
	hash := strings.Repeat("a", 64)

	code, stdout, stderr := execute(t, url, "timestamp", hash)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Hash:          "+hash)
	assert.Contains(t, stdout, "Timestamp:     1700000000\n")
	assert.Contains(t, stdout, "Exact message: "+hash+"|1700000000")
	assert.Equal(t, 1, a.Requests(authority.TimestampPath))

	code, stdout, _ = execute(t, url, "timestamp", "--format-time", hash)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Timestamp:     "+timestamp.FormatTimestamp(1700000000, true, nil))
}

func TestTimestampCommandInvalidHash(t *testing.T) {
	a, url := startAuthority(t)

	code, stdout, stderr := execute(t, url, "timestamp", "xyz")
	assert.Equal(t, exitFailed, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: Hash must be a 64-character hex string.")
	assert.Zero(t, a.Requests(authority.TimestampPath))

	code, _, stderr = execute(t, url, "timestamp", "--file", "x", strings.Repeat("a", 64))
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "not both")

	code, _, _ = execute(t, url, "timestamp", "--out", "receipt.txt", strings.Repeat("a", 64))
	assert.Equal(t, exitUsage, code)
	assert.Zero(t, a.Requests(authority.TimestampPath))
}

func TestTimestampFileWithReceipt(t *testing.T) {
	a, url := startAuthority(t)
	doc := writeFile(t, "hello.txt", "hello")
	out := filepath.Join(t.TempDir(), "receipt.yaml")

	code, stdout, stderr := execute(t, url, "timestamp", "--file", doc, "--out", out)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Hash:          "+helloDigest)
	assert.Contains(t, stdout, "Receipt:       "+out)

	r, err := receipt.Read(out)
	require.NoError(t, err)
	assert.Equal(t, helloDigest, r.Hash)
	assert.Equal(t, url, r.Authority)
	assert.Equal(t, string(a.PublicKeyPEM()), r.PublicKey)
	require.NotNil(t, r.File)
	assert.Equal(t, doc, r.File.Path)

	t.Run("verify online", func(t *testing.T) {
		code, stdout, _ := execute(t, url, "verify", "--receipt", out)
		assert.Equal(t, exitOK, code)
		assert.Equal(t, out+": Signature is valid.\n", stdout)
		assert.Equal(t, 1, a.Requests(authority.VerifyPath))
	})

	t.Run("verify offline", func(t *testing.T) {
		code, stdout, _ := execute(t, url, "verify", "--offline", "--receipt", out)
		assert.Equal(t, exitOK, code)
		assert.Equal(t, out+": Signature is valid.\n", stdout)
		assert.Equal(t, 1, a.Requests(authority.VerifyPath))
	})

	t.Run("verify offline with trusted key file", func(t *testing.T) {
		pem := writeFile(t, "authority.pem", string(a.PublicKeyPEM()))
		code, stdout, _ := execute(t, "http://127.0.0.1:1", "verify", "--offline", "--public-key", pem, "--receipt", out)
		assert.Equal(t, exitOK, code)
		assert.Equal(t, out+": Signature is valid.\n", stdout)
	})

	t.Run("verify offline without trusted key", func(t *testing.T) {
		code, stdout, _ := execute(t, "http://127.0.0.1:1", "verify", "--offline", "--receipt", out)
		assert.Equal(t, exitInvalid, code)
		assert.Equal(t, out+": Signature is NOT valid (public key unverified).\n", stdout)
	})

	t.Run("public key requires offline", func(t *testing.T) {
		pem := writeFile(t, "authority.pem", string(a.PublicKeyPEM()))
		code, _, _ := execute(t, url, "verify", "--public-key", pem, "--receipt", out)
		assert.Equal(t, exitUsage, code)

		code, _, _ = execute(t, url, "verify", "--offline", "--public-key", writeFile(t, "bad.pem", "not a pem"), "--receipt", out)
		assert.Equal(t, exitUsage, code)
	})

	t.Run("swapped hash rejected before asking the authority", func(t *testing.T) {
		swapped := r
		swapped.Hash = strings.Repeat("b", 64)
		path := filepath.Join(t.TempDir(), "swapped.json")
		require.NoError(t, receipt.Write(path, swapped))

		before := a.Requests(authority.VerifyPath)
		code, stdout, _ := execute(t, url, "verify", "--receipt", path)
		assert.Equal(t, exitInvalid, code)
		assert.Equal(t, path+": Signature is NOT valid (exact message does not cover the receipt's hash).\n", stdout)
		assert.Equal(t, before, a.Requests(authority.VerifyPath))
	})

	t.Run("tampered receipt", func(t *testing.T) {
		r.Timestamp++
		r.ExactMessage = authoritytest.ExactMessage(r.Hash, r.Timestamp)
		tampered := filepath.Join(t.TempDir(), "tampered.json")
		require.NoError(t, receipt.Write(tampered, r))

		code, stdout, _ := execute(t, url, "verify", "--offline", "--receipt", out, "--receipt", tampered)
		assert.Equal(t, exitInvalid, code)
		assert.Contains(t, stdout, out+": Signature is valid.")
		assert.Contains(t, stdout, tampered+": Signature is NOT valid (Signature verification failed).")
	})
}

func TestVerifyForgedReceipt(t *testing.T) {
	trusted, url := startAuthority(t)
	_, forgerURL := startAuthority(t)
	doc := writeFile(t, "hello.txt", "hello")
	out := filepath.Join(t.TempDir(), "receipt.json")

	code, _, stderr := execute(t, forgerURL, "timestamp", "--file", doc, "--out", out)
	require.Equal(t, exitOK, code, stderr)

	r, err := receipt.Read(out)
	require.NoError(t, err)
	r.Authority = url
	require.NoError(t, receipt.Write(out, r))

	code, stdout, _ := execute(t, url, "verify", "--offline", "--receipt", out)
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, stdout, "receipt was issued under a different public key")

	pem := writeFile(t, "trusted.pem", string(trusted.PublicKeyPEM()))
	code, stdout, _ = execute(t, "http://127.0.0.1:1", "verify", "--offline", "--public-key", pem, "--receipt", out)
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, stdout, "receipt was issued under a different public key")

	r.PublicKey = ""
	require.NoError(t, receipt.Write(out, r))
	code, stdout, _ = execute(t, "http://127.0.0.1:1", "verify", "--offline", "--public-key", pem, "--receipt", out)
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, stdout, "Signature verification failed")
}

func TestVerifyCommand(t *testing.T) {
	_, url := startAuthority(t)

	code, stdout, _ := execute(t, url, "verify", "--message", "test|1234567890.0", "--signature", "aW52YWxpZHNpZw==")
	assert.Equal(t, exitInvalid, code)
	assert.Equal(t, "Signature is NOT valid (Signature verification failed).\n", stdout)

	code, _, stderr := execute(t, url, "verify", "--message", "hello")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "Signature is required.")

	code, _, stderr = execute(t, url, "verify", "--message", "hello", "--receipt", "r.yaml")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "cannot be combined")
}

func TestVerifyCommandJSON(t *testing.T) {
	_, url := startAuthority(t)

	code, stdout, _ := execute(t, url, "verify", "-o", "json", "--message", "m", "--signature", "c2ln")
	assert.Equal(t, exitInvalid, code)

	var v timestamp.Verification
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.False(t, v.Valid)
	assert.Equal(t, "Signature verification failed", v.Error)
}

func TestPublicKeyCommand(t *testing.T) {
	a, url := startAuthority(t)

	code, stdout, _ := execute(t, url, "public-key")
	require.Equal(t, exitOK, code)
	assert.Equal(t, string(a.PublicKeyPEM()), stdout)

	_, url = startAuthority(t, authoritytest.WithoutPublicKey())
	code, _, stderr := execute(t, url, "public-key")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "Error: An error occurred while retrieving the public key.")
}

func TestHealthCommand(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		a, url := startAuthority(t)
		code, stdout, _ := execute(t, url, "health")
		assert.Equal(t, exitOK, code)
		assert.Equal(t, "Authority at "+url+" is healthy.\n", stdout)
		assert.Equal(t, 1, a.Requests(authority.PublicKeyPath))
	})

	t.Run("recovers", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}

			_, _ = w.Write([]byte(`{"public_key": "pem"}`))
		}))
		t.Cleanup(srv.Close)

		code, _, _ := execute(t, srv.URL, "health", "--attempts", "3", "--interval", "1ms")
		assert.Equal(t, exitOK, code)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		code, _, stderr := execute(t, url, "health", "--attempts", "2", "--interval", "1ms")
		assert.Equal(t, exitFailed, code)
		assert.Contains(t, stderr, "Error: Network error.")
		assert.Contains(t, stderr, "attempt 2 of 2 failed")
	})
}
