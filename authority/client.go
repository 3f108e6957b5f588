// Copyright 2022 The Witness Contributors
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

package authority

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/timestamper/go-timestamper/timestamp"
)

const (
	PublicKeyPath = "/api/public-key"
	TimestampPath = "/api/timestamp"
	VerifyPath    = "/api/verify"
)

const (
	OpPublicKey = "public-key"
	OpTimestamp = "timestamp"
	OpVerify    = "verify"
)

var _ timestamp.Authority = (*Client)(nil)

// Client speaks the authority's JSON API. Every call is one request and one response; the
// client never retries and keeps no state between calls.
type Client struct {
	url        string
	headers    http.Header
	httpClient *http.Client
}

type Option func(*Client)

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		if h != nil {
			c.headers = h.Clone()
		}
	}
}

// WithHTTPClient replaces the http.Client used for requests. No timeout is set on the default
// client; a call that never gets a response blocks until its context ends.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(c)
	}

	return c
}

func (c *Client) URL() string {
	return c.url
}

type timestampRequest struct {
	Hash string `json:"hash"`
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// PublicKey fetches the authority's public key. A success status without a public_key in the
// body is treated as a failure.
func (c *Client) PublicKey(ctx context.Context) (timestamp.PublicKey, error) {
	res, err := get[timestamp.PublicKey](ctx, c, OpPublicKey, PublicKeyPath)
	if err != nil {
		return timestamp.PublicKey{}, err
	}

	if !res.ok() || res.decodeErr != nil || res.body.PublicKey == "" {
		return timestamp.PublicKey{}, res.protocolError(OpPublicKey)
	}

	return res.body, nil
}

// Timestamp asks the authority to sign hash. The hash is sent as given; callers are expected to
// have validated it already. A timestamp without a signature is treated as a failure. The
// returned Result always carries the hash, even when the authority did not echo it.
func (c *Client) Timestamp(ctx context.Context, hash string) (timestamp.Result, error) {
	res, err := post[timestamp.Result](ctx, c, OpTimestamp, TimestampPath, timestampRequest{Hash: hash})
	if err != nil {
		return timestamp.Result{}, err
	}

	if !res.ok() || res.decodeErr != nil || res.body.Signature == "" {
		return timestamp.Result{}, res.protocolError(OpTimestamp)
	}

	// the hash echo is optional
	if res.body.Hash == "" {
		res.body.Hash = hash
	}

	return res.body, nil
}

// Verify asks the authority to check signature over message. Any success response is returned
// as is, including one that reports the signature as invalid.
func (c *Client) Verify(ctx context.Context, message, signature string) (timestamp.Verification, error) {
	res, err := post[timestamp.Verification](ctx, c, OpVerify, VerifyPath, verifyRequest{Message: message, Signature: signature})
	if err != nil {
		return timestamp.Verification{}, err
	}

	if !res.ok() || res.decodeErr != nil {
		return timestamp.Verification{}, res.protocolError(OpVerify)
	}

	return res.body, nil
}

// IsNetworkError reports whether err, or an error it wraps, is an ErrNetwork.
func IsNetworkError(err error) bool {
	var netErr ErrNetwork
	return errors.As(err, &netErr)
}

// ProtocolMessage returns the authority supplied message carried by err, if any.
func ProtocolMessage(err error) (string, bool) {
	var protoErr ErrProtocol
	if !errors.As(err, &protoErr) {
		return "", false
	}

	return protoErr.Message, true
}
