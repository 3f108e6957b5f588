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

package timestamp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// FakeTimestamper is an in-memory Authority for tests. Its "signature" is the base64 of the
// exact message, so it proves nothing.
type FakeTimestamper struct {
	T   time.Time
	Key string
}

func (ft FakeTimestamper) seconds() float64 {
	return float64(ft.T.Unix()) + float64(ft.T.Nanosecond())/float64(time.Second)
}

func (ft FakeTimestamper) Timestamp(_ context.Context, hash string) (Result, error) {
	secs := ft.seconds()
	msg := fmt.Sprintf("%s|%s", hash, strconv.FormatFloat(secs, 'f', -1, 64))
	return Result{
		Hash:         hash,
		Timestamp:    secs,
		ExactMessage: msg,
		Signature:    base64.StdEncoding.EncodeToString([]byte(msg)),
	}, nil
}

func (ft FakeTimestamper) Verify(_ context.Context, message, signature string) (Verification, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return Verification{}, fmt.Errorf("signature must be base64-encoded: %w", err)
	}

	if string(sig) != message {
		return Verification{Valid: false, Error: "mismatched message"}, nil
	}

	return Verification{Valid: true}, nil
}

func (ft FakeTimestamper) PublicKey(context.Context) (PublicKey, error) {
	return PublicKey{PublicKey: ft.Key}, nil
}
