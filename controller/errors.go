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

package controller

import "fmt"

// ErrValidation means the input was rejected before any call was made. Message is shown to
// the user as is.
type ErrValidation struct {
	Message string
}

func (e ErrValidation) Error() string {
	return e.Message
}

// ErrBusy is returned by Trigger while a call is in flight.
type ErrBusy struct {
	Name string
}

func (e ErrBusy) Error() string {
	return fmt.Sprintf("%s is already in progress", e.Name)
}
