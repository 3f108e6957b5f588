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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	result := Result{Timestamp: 1700000000.25}

	t.Run("raw", func(t *testing.T) {
		assert.Equal(t, "1700000000.25", FormatTimestamp(result.Timestamp, false, time.UTC))
	})

	t.Run("formatted", func(t *testing.T) {
		assert.Equal(t, "2023-11-14 22:13:20 UTC", FormatTimestamp(result.Timestamp, true, time.UTC))
	})

	t.Run("toggle does not touch the stored value", func(t *testing.T) {
		_ = FormatTimestamp(result.Timestamp, true, time.UTC)
		assert.Equal(t, 1700000000.25, result.Timestamp)
		assert.Equal(t, "1700000000.25", FormatTimestamp(result.Timestamp, false, time.UTC))
	})
}

func TestResultTime(t *testing.T) {
	r := Result{Timestamp: 1700000000.5}
	assert.Equal(t, time.Unix(1700000000, 500000000), r.Time())
}

func TestFakeTimestamper(t *testing.T) {
	ft := FakeTimestamper{T: time.Unix(1700000000, 0), Key: "fake-key"}
	hash := strings.Repeat("a", 64)

	res, err := ft.Timestamp(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash+"|1700000000", res.ExactMessage)

	v, err := ft.Verify(context.Background(), res.ExactMessage, res.Signature)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	v, err = ft.Verify(context.Background(), "something else", res.Signature)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "mismatched message", v.Error)

	_, err = ft.Verify(context.Background(), res.ExactMessage, "%%%")
	assert.Error(t, err)

	pk, err := ft.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-key", pk.PublicKey)
}
