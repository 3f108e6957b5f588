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

package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/timestamper/go-timestamper/log"
)

type errorBody struct {
	Error      string   `json:"error"`
	RetryAfter *float64 `json:"retry_after,omitempty"`
}

type response[T any] struct {
	status int
	body   T
	// errBody is decoded from every response so that protocol errors can carry the
	// authority's message regardless of status.
	errBody errorBody
	// decodeErr is set when the body was not valid JSON for T.
	decodeErr error
	header    http.Header
}

func (r response[T]) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r response[T]) protocolError(op string) ErrProtocol {
	return ErrProtocol{
		Op:         op,
		StatusCode: r.status,
		Message:    r.errBody.Error,
		RetryAfter: r.retryAfter(),
	}
}

func (r response[T]) retryAfter() time.Duration {
	if r.errBody.RetryAfter != nil {
		return time.Duration(*r.errBody.RetryAfter * float64(time.Second))
	}

	if secs, err := strconv.Atoi(r.header.Get("Retry-After")); err == nil {
		return time.Duration(secs) * time.Second
	}

	return 0
}

func get[T any](ctx context.Context, c *Client, op, path string) (response[T], error) {
	return do[T](ctx, c, op, http.MethodGet, path, nil)
}

func post[T any](ctx context.Context, c *Client, op, path string, data any) (response[T], error) {
	b, err := json.Marshal(data)
	if err != nil {
		return response[T]{}, fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	return do[T](ctx, c, op, http.MethodPost, path, b)
}

// do performs a single round trip. Transport failures are ErrNetwork. Any response that
// arrived, whatever its status or body, is returned for the caller to judge.
func do[T any](ctx context.Context, c *Client, op, method, path string, body []byte) (response[T], error) {
	var res response[T]
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return res, fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("(authority) %s %s: %w", method, path, err)
		return res, ErrNetwork{Op: op, Err: err}
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return res, ErrNetwork{Op: op, Err: err}
	}

	log.Debugf("(authority) %s %s: %d", method, path, resp.StatusCode)
	res.status = resp.StatusCode
	res.header = resp.Header
	if err := json.Unmarshal(raw, &res.body); err != nil {
		res.decodeErr = err
	}

	if err := json.Unmarshal(raw, &res.errBody); err != nil {
		res.errBody = errorBody{}
	}

	return res, nil
}
