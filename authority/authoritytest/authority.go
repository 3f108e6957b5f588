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

// Package authoritytest provides an in-process timestamping authority that speaks the same
// HTTP API as the real service. Hashes are signed as "<hash>|<unix seconds>" with ECDSA P-256
// over SHA-256 and the DER signature is returned base64 encoded.
package authoritytest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timestamper/go-timestamper/authority"
	"github.com/timestamper/go-timestamper/cryptoutil"
)

type Authority struct {
	signer       *cryptoutil.ECDSASigner
	publicKeyPEM []byte
	now          func() time.Time
	noPublicKey  bool
	limits       map[string]rateLimit
	engine       *gin.Engine

	mu       sync.Mutex
	requests map[string]int
	windows  map[string]*window
}

type rateLimit struct {
	requests int
	window   time.Duration
}

type window struct {
	count int
	end   time.Time
}

type Option func(*Authority)

// WithClock replaces time.Now as the source of issued timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithKey signs with priv instead of a freshly generated P-256 key.
func WithKey(priv *ecdsa.PrivateKey) Option {
	return func(a *Authority) {
		a.signer = cryptoutil.NewECDSASigner(priv, crypto.SHA256)
	}
}

// WithoutPublicKey makes the public key endpoint fail the way it does when the key file is
// missing on the server.
func WithoutPublicKey() Option {
	return func(a *Authority) {
		a.noPublicKey = true
	}
}

// WithRateLimit allows at most requests calls to path per window. Further calls get a 429.
func WithRateLimit(path string, requests int, per time.Duration) Option {
	return func(a *Authority) {
		a.limits[path] = rateLimit{requests: requests, window: per}
	}
}

func New(opts ...Option) (*Authority, error) {
	a := &Authority{
		now:      time.Now,
		limits:   make(map[string]rateLimit),
		requests: make(map[string]int),
		windows:  make(map[string]*window),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.signer == nil {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate authority key: %w", err)
		}

		a.signer = cryptoutil.NewECDSASigner(priv, crypto.SHA256)
	}

	pemBytes, err := a.signer.Verifier().PublicPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to encode authority public key: %w", err)
	}

	a.publicKeyPEM = pemBytes
	gin.SetMode(gin.ReleaseMode)
	a.engine = gin.New()
	a.engine.Use(gin.Recovery(), a.count(), a.rateLimit())
	a.engine.GET(authority.PublicKeyPath, a.getPublicKey)
	a.engine.POST(authority.TimestampPath, a.timestamp)
	a.engine.POST(authority.VerifyPath, a.verify)
	return a, nil
}

func (a *Authority) Handler() http.Handler {
	return a.engine
}

func (a *Authority) PublicKeyPEM() []byte {
	return a.publicKeyPEM
}

// Requests returns how many requests reached path, including rejected ones.
func (a *Authority) Requests(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[path]
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// ExactMessage builds the string the authority signs for hash at seconds.
func ExactMessage(hash string, seconds float64) string {
	return fmt.Sprintf("%s|%s", hash, strconv.FormatFloat(seconds, 'f', -1, 64))
}

func (a *Authority) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.mu.Lock()
		a.requests[c.Request.URL.Path]++
		a.mu.Unlock()
		c.Next()
	}
}

func (a *Authority) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		limit, ok := a.limits[path]
		if !ok {
			c.Next()
			return
		}

		now := a.now()
		a.mu.Lock()
		w, ok := a.windows[path]
		if !ok || now.After(w.end) {
			w = &window{end: now.Add(limit.window)}
			a.windows[path] = w
		}

		w.count++
		exceeded := w.count > limit.requests
		retryAfter := math.Ceil(w.end.Sub(now).Seconds())
		a.mu.Unlock()

		if exceeded {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded. Please try again later.",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

func (a *Authority) getPublicKey(c *gin.Context) {
	if a.noPublicKey {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while retrieving the public key."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": string(a.publicKeyPEM)})
}

type timestampBody struct {
	Hash *string `json:"hash"`
}

func (a *Authority) timestamp(c *gin.Context) {
	var body timestampBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Hash == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON body must include 'hash' field"})
		return
	}

	hash := *body.Hash
	if !cryptoutil.IsValidDigest(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be a 64-character hex string"})
		return
	}

	secs := unixSeconds(a.now())
	msg := ExactMessage(hash, secs)
	sig, err := a.signer.SignMessage(msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hash":          hash,
		"timestamp":     secs,
		"exact_message": msg,
		"signature":     sig,
	})
}

type verifyBody struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (a *Authority) verify(c *gin.Context) {
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "JSON body required"})
		return
	}

	if body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "'message' field is required"})
		return
	}

	if body.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "'signature' field is required"})
		return
	}

	err := a.signer.Verifier().VerifyMessage(body.Message, body.Signature)
	var encErr cryptoutil.ErrSignatureEncoding
	switch {
	case errors.As(err, &encErr):
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Signature must be base64-encoded"})
		return
	case err != nil:
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Signature verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}
