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

import (
	"context"
	"errors"
	"sync"

	"github.com/timestamper/go-timestamper/log"
)

// Validator checks raw user input and returns the input to use for the call. Rejections
// should be ErrValidation so their message reaches the user unchanged.
type Validator[In any] func(In) (In, error)

// Call performs the operation for validated input.
type Call[In, Out any] func(context.Context, In) (Out, error)

// Describer turns a failed call into the message shown to the user.
type Describer func(error) string

// Controller runs one user facing operation at a time and holds its outcome.
//
//	Idle --invalid input--> Failed
//	Idle --valid input--> Busy --ok--> Succeeded
//	                          --err--> Failed
//	Succeeded|Failed --trigger--> Busy
//
// Every trigger and every Reset starts a new generation. A call that completes after its
// generation has been replaced is dropped, so only the latest trigger can ever land.
type Controller[In, Out any] struct {
	name     string
	validate Validator[In]
	call     Call[In, Out]
	describe Describer

	mu         sync.Mutex
	state      State[Out]
	generation uint64

	// notifyMu is always taken before mu and held while listeners run, so listeners
	// observe transitions in the order they happened.
	notifyMu  sync.Mutex
	listeners []func(State[Out])
}

type Option[In, Out any] func(*Controller[In, Out])

// WithValidator sets the input check. Without one every input is accepted.
func WithValidator[In, Out any](v Validator[In]) Option[In, Out] {
	return func(c *Controller[In, Out]) {
		c.validate = v
	}
}

// WithDescriber sets how call errors become user messages.
func WithDescriber[In, Out any](d Describer) Option[In, Out] {
	return func(c *Controller[In, Out]) {
		c.describe = d
	}
}

func New[In, Out any](name string, call Call[In, Out], opts ...Option[In, Out]) *Controller[In, Out] {
	c := &Controller[In, Out]{
		name:     name,
		call:     call,
		validate: func(in In) (In, error) { return in, nil },
		describe: func(err error) string { return err.Error() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller[In, Out]) Name() string {
	return c.name
}

// State returns a copy of the current state.
func (c *Controller[In, Out]) State() State[Out] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to be called after every transition. Listeners run synchronously; they
// may read State but must not trigger or reset the controller they listen to.
func (c *Controller[In, Out]) OnChange(fn func(State[Out])) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Trigger validates in and, if it passes, starts the call on its own goroutine. The returned
// channel is closed once this trigger has settled: immediately when validation fails,
// otherwise when the call returns (whether or not its result was applied). Triggering while
// Busy changes nothing and returns ErrBusy.
//
// The call runs to completion even if ctx is canceled; cancellation of ctx is not propagated.
func (c *Controller[In, Out]) Trigger(ctx context.Context, in In) (<-chan struct{}, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.state.Phase == Busy {
		c.mu.Unlock()
		return nil, ErrBusy{Name: c.name}
	}

	c.generation++
	gen := c.generation
	done := make(chan struct{})
	input, err := c.validate(in)
	if err != nil {
		msg := err.Error()
		var verr ErrValidation
		if errors.As(err, &verr) {
			msg = verr.Message
		}

		log.Debugf("(controller/%s) rejected input: %v", c.name, msg)
		c.set(State[Out]{Phase: Failed, Message: msg})
		close(done)
		return done, nil
	}

	c.set(State[Out]{Phase: Busy})
	go func() {
		defer close(done)
		out, err := c.call(context.WithoutCancel(ctx), input)
		c.settle(gen, out, err)
	}()

	return done, nil
}

// Run triggers and waits for this trigger to settle, then returns the controller's state.
func (c *Controller[In, Out]) Run(ctx context.Context, in In) (State[Out], error) {
	done, err := c.Trigger(ctx, in)
	if err != nil {
		return c.State(), err
	}

	<-done
	return c.State(), nil
}

// Reset returns the controller to Idle. A call still in flight is orphaned and its result
// will be discarded.
func (c *Controller[In, Out]) Reset() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.generation++
	c.set(State[Out]{Phase: Idle})
}

func (c *Controller[In, Out]) settle(gen uint64, out Out, err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		log.Debugf("(controller/%s) discarding stale result from generation %d", c.name, gen)
		return
	}

	if err != nil {
		log.Debugf("(controller/%s) call failed: %w", c.name, err)
		c.set(State[Out]{Phase: Failed, Message: c.describe(err)})
		return
	}

	c.set(State[Out]{Phase: Succeeded, Payload: out})
}

// set must be called with both notifyMu and mu held. It releases mu before running listeners.
func (c *Controller[In, Out]) set(s State[Out]) {
	c.state = s
	c.mu.Unlock()
	for _, fn := range c.listeners {
		fn(s)
	}
}
