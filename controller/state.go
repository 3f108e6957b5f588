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

type Phase int

const (
	Idle Phase = iota
	Busy
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of a controller. Payload is only meaningful when Phase is Succeeded
// and Message only when Phase is Failed.
type State[T any] struct {
	Phase   Phase
	Payload T
	Message string
}

func (s State[T]) String() string {
	switch s.Phase {
	case Succeeded:
		return fmt.Sprintf("%v(%+v)", s.Phase, s.Payload)
	case Failed:
		return fmt.Sprintf("%v(%q)", s.Phase, s.Message)
	default:
		return s.Phase.String()
	}
}
