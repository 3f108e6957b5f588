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
	"fmt"
	"time"
)

// ErrNetwork is returned when no response was received from the authority.
type ErrNetwork struct {
	Op  string
	Err error
}

func (e ErrNetwork) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrProtocol is returned when the authority responded but the response says the operation
// failed, either through a non-success status or a success body that is missing what the
// operation needs. Message holds the authority's own "error" field and may be empty.
type ErrProtocol struct {
	Op         string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e ErrProtocol) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: authority responded with status %d", e.Op, e.StatusCode)
	}

	return fmt.Sprintf("%s: authority responded with status %d: %s", e.Op, e.StatusCode, e.Message)
}
