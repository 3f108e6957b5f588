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
	"math"
	"strconv"
	"time"
)

// DisplayLayout is used when a timestamp is shown as a date instead of unix seconds.
const DisplayLayout = "2006-01-02 15:04:05 MST"

// Result is a signed timestamp issued by an authority over a hash.
type Result struct {
	Hash         string  `json:"hash,omitempty" yaml:"hash,omitempty" jsonschema:"title=Hash,description=Hex SHA-256 digest that was timestamped"`
	Timestamp    float64 `json:"timestamp" yaml:"timestamp" jsonschema:"title=Timestamp,description=Unix time in seconds at which the authority signed the hash"`
	ExactMessage string  `json:"exact_message" yaml:"exact_message" jsonschema:"title=Exact Message,description=The exact string the authority signed"`
	Signature    string  `json:"signature" yaml:"signature" jsonschema:"title=Signature,description=Base64 encoded signature over the exact message"`
}

// Time converts the unix seconds timestamp to a time.Time.
func (r Result) Time() time.Time {
	return SecondsToTime(r.Timestamp)
}

// Verification is the outcome of a signature check. A Verification with Valid set to false
// is still a successful exchange with the authority.
type Verification struct {
	Valid bool   `json:"valid" yaml:"valid"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

type PublicKey struct {
	PublicKey string `json:"public_key" yaml:"public_key"`
}

type Timestamper interface {
	Timestamp(ctx context.Context, hash string) (Result, error)
}

type TimestampVerifier interface {
	Verify(ctx context.Context, message, signature string) (Verification, error)
}

type KeyProvider interface {
	PublicKey(ctx context.Context) (PublicKey, error)
}

// Authority is everything a client needs from a timestamping authority.
type Authority interface {
	Timestamper
	TimestampVerifier
	KeyProvider
}

func SecondsToTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}

// FormatTimestamp renders unix seconds for display. With formatted false the raw number is
// returned unchanged so the caller can toggle back and forth without touching the stored value.
func FormatTimestamp(seconds float64, formatted bool, loc *time.Location) string {
	if !formatted {
		return strconv.FormatFloat(seconds, 'f', -1, 64)
	}

	if loc == nil {
		loc = time.Local
	}

	return SecondsToTime(seconds).In(loc).Format(DisplayLayout)
}
