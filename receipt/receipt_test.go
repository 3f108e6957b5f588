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
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timestamper/go-timestamper/authority"
	"github.com/timestamper/go-timestamper/authority/authoritytest"
	"github.com/timestamper/go-timestamper/cryptoutil"
	"github.com/timestamper/go-timestamper/timestamp"
)

func issue(t *testing.T, opts ...authoritytest.Option) (*authoritytest.Authority, *authority.Client, Receipt) {
	t.Helper()
	opts = append(opts, authoritytest.WithClock(func() time.Time { return time.Unix(1700000000, 125000000) }))
	a, err := authoritytest.New(opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	client := authority.New(srv.URL)
	res, err := client.Timestamp(context.Background(), strings.Repeat("d", 64))
	require.NoError(t, err)
	return a, client, Receipt{
		Result:    res,
		Authority: client.URL(),
		PublicKey: string(a.PublicKeyPEM()),
	}
}

func TestWriteRead(t *testing.T) {
	_, _, r := issue(t)
	r.File = &cryptoutil.FileDigest{Path: "doc.pdf", Size: 3, MediaType: "application/pdf", Digest: r.Hash}

	for _, name := range []string{"receipt.yaml", "receipt.yml", "receipt.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Write(path, r))

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, r, got)
		})
	}
}

func TestEncodedFieldNames(t *testing.T) {
	_, _, r := issue(t)

	data, err := Marshal(r, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exact_message": "`+r.ExactMessage+`"`)
	assert.Contains(t, string(data), `"timestamp": 1700000000.125`)

	data, err = Marshal(r, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "exact_message: "+r.ExactMessage)
	assert.Contains(t, string(data), "authority: "+r.Authority)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := FormatFromPath("receipt.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat(".txt"))

	assert.Error(t, Write(filepath.Join(t.TempDir(), "receipt"), Receipt{}))
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestVerifyWithTrustedKey(t *testing.T) {
	a, _, r := issue(t)

	v, err := Verify(context.Background(), r, StaticKey(a.PublicKeyPEM()))
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestVerifyRecordedKeyIsNotTrusted(t *testing.T) {
	trusted, client, _ := issue(t)
	_, _, forged := issue(t)
	forged.Authority = client.URL()

	_, err := Verify(context.Background(), forged, nil)
	assert.ErrorIs(t, err, ErrNoPublicKey{})

	for name, keys := range map[string]timestamp.KeyProvider{
		"trusted pem":       StaticKey(trusted.PublicKeyPEM()),
		"authority current": client,
	} {
		t.Run(name, func(t *testing.T) {
			v, err := Verify(context.Background(), forged, keys)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, "receipt was issued under a different public key", v.Error)

			withoutKey := forged
			withoutKey.PublicKey = ""
			v, err = Verify(context.Background(), withoutKey, keys)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, "Signature verification failed", v.Error)
		})
	}
}

func TestVerifyOnline(t *testing.T) {
	a, client, r := issue(t)

	v, err := Verify(context.Background(), r, client)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 1, a.Requests(authority.PublicKeyPath))

	r.PublicKey = ""
	v, err = Verify(context.Background(), r, client)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestVerifyDifferentKey(t *testing.T) {
	_, _, r := issue(t)
	_, other, _ := issue(t)

	v, err := Verify(context.Background(), r, other)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "receipt was issued under a different public key", v.Error)

	r.PublicKey = ""
	v, err = Verify(context.Background(), r, other)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Signature verification failed", v.Error)
}

func TestVerifyTampered(t *testing.T) {
	a, _, r := issue(t)
	r.File = &cryptoutil.FileDigest{Path: "doc.txt", Digest: r.Hash}

	tests := []struct {
		name   string
		tamper func(*Receipt)
		want   string
	}{
		{"hash swapped", func(r *Receipt) { r.Hash = strings.Repeat("e", 64) }, "exact message does not cover the receipt's hash"},
		{"file swapped", func(r *Receipt) { r.File = &cryptoutil.FileDigest{Path: "other.txt", Digest: strings.Repeat("f", 64)} }, "exact message does not cover the receipt's file"},
		{"timestamp moved", func(r *Receipt) { r.Timestamp++ }, "exact message does not match the receipt's timestamp"},
		{"no separator", func(r *Receipt) { r.ExactMessage = r.Hash }, "exact message is not of the form <hash>|<timestamp>"},
		{"signature not base64", func(r *Receipt) { r.Signature = "***" }, "Signature must be base64-encoded"},
		{
			"message and timestamp rewritten together",
			func(r *Receipt) {
				r.Timestamp = 1800000000
				r.ExactMessage = authoritytest.ExactMessage(r.Hash, r.Timestamp)
			},
			"Signature verification failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := r
			tt.tamper(&tampered)

			v, err := Verify(context.Background(), tampered, StaticKey(a.PublicKeyPEM()))
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, tt.want, v.Error)

			if !strings.HasPrefix(tt.want, "Signature") {
				v, ok := CheckMessage(tampered)
				assert.False(t, ok)
				assert.Equal(t, tt.want, v.Error)
			}
		})
	}
}

func TestVerifyWithoutHash(t *testing.T) {
	a, _, r := issue(t)
	r.Hash = ""

	v, err := Verify(context.Background(), r, StaticKey(a.PublicKeyPEM()))
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestVerifyNoKey(t *testing.T) {
	_, _, r := issue(t)
	r.PublicKey = ""

	_, err := Verify(context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrNoPublicKey{})

	_, err = Verify(context.Background(), r, StaticKey(""))
	assert.ErrorIs(t, err, ErrNoPublicKey{})

	_, err = Verify(context.Background(), r, StaticKey("not a pem"))
	assert.Error(t, err)
}

func TestVerifyKeyFetchFails(t *testing.T) {
	_, _, r := issue(t)
	_, unavailable, _ := issue(t, authoritytest.WithoutPublicKey())

	_, err := Verify(context.Background(), r, unavailable)
	var keyErr ErrKeyUnavailable
	require.ErrorAs(t, err, &keyErr)
	msg, ok := authority.ProtocolMessage(err)
	require.True(t, ok)
	assert.Equal(t, "An error occurred while retrieving the public key.", msg)
}
