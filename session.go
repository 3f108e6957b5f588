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

package timestamper

import (
	"context"
	"fmt"

	"github.com/timestamper/go-timestamper/controller"
	"github.com/timestamper/go-timestamper/cryptoutil"
	"github.com/timestamper/go-timestamper/log"
	"github.com/timestamper/go-timestamper/timestamp"
)

// OperationID names one of the user facing operations a Session runs.
type OperationID string

const (
	OpHash      OperationID = "hash"
	OpTimestamp OperationID = "timestamp"
	OpVerify    OperationID = "verify"
	OpPublicKey OperationID = "public-key"
)

// Operations lists every OperationID in the order they are usually presented.
var Operations = []OperationID{OpHash, OpTimestamp, OpVerify, OpPublicKey}

type ErrUnknownOperation OperationID

func (e ErrUnknownOperation) Error() string {
	return fmt.Sprintf("unknown operation: %v", string(e))
}

// ErrOperationFailed carries the message of an operation that ended in Failed.
type ErrOperationFailed struct {
	Op      OperationID
	Message string
}

func (e ErrOperationFailed) Error() string {
	return fmt.Sprintf("%v failed: %v", e.Op, e.Message)
}

// Status is the phase and user visible text of one operation.
type Status struct {
	Op      OperationID
	Phase   controller.Phase
	Message string
}

// Session holds one controller per operation. The controllers are independent: a busy
// timestamp never blocks a verify.
type Session struct {
	Hash      *controller.HashController
	Timestamp *controller.TimestampController
	Verify    *controller.VerifyController
	PublicKey *controller.PublicKeyController
}

func NewSession(auth timestamp.Authority) *Session {
	return &Session{
		Hash:      controller.NewHashController(),
		Timestamp: controller.NewTimestampController(auth),
		Verify:    controller.NewVerifyController(auth),
		PublicKey: controller.NewPublicKeyController(auth),
	}
}

// Status reports the current phase of op.
func (s *Session) Status(op OperationID) (Status, error) {
	switch op {
	case OpHash:
		return status(op, s.Hash.State()), nil
	case OpTimestamp:
		return status(op, s.Timestamp.State()), nil
	case OpVerify:
		return status(op, s.Verify.State()), nil
	case OpPublicKey:
		return status(op, s.PublicKey.State()), nil
	default:
		return Status{}, ErrUnknownOperation(op)
	}
}

func status[T any](op OperationID, st controller.State[T]) Status {
	return Status{Op: op, Phase: st.Phase, Message: st.Message}
}

// Reset returns every controller to Idle, orphaning any call in flight.
func (s *Session) Reset() {
	s.Hash.Reset()
	s.Timestamp.Reset()
	s.Verify.Reset()
	s.PublicKey.Reset()
}

// HashFile runs the hash operation for path and waits for it.
func (s *Session) HashFile(ctx context.Context, path string) (cryptoutil.FileDigest, error) {
	return outcome(ctx, OpHash, s.Hash, path)
}

// TimestampHash runs the timestamp operation for hash and waits for it.
func (s *Session) TimestampHash(ctx context.Context, hash string) (timestamp.Result, error) {
	return outcome(ctx, OpTimestamp, s.Timestamp, hash)
}

// TimestampFile hashes path and, when that succeeds, timestamps the digest. Hashing stays
// local; only the digest is sent to the authority.
func (s *Session) TimestampFile(ctx context.Context, path string) (timestamp.Result, cryptoutil.FileDigest, error) {
	fd, err := s.HashFile(ctx, path)
	if err != nil {
		return timestamp.Result{}, cryptoutil.FileDigest{}, err
	}

	log.Debugf("(timestamper) timestamping %v (%v)", fd.Path, fd.Digest)
	res, err := s.TimestampHash(ctx, fd.Digest)
	if err != nil {
		return timestamp.Result{}, fd, err
	}

	return res, fd, nil
}

// VerifySignature runs the verify operation and waits for it. A signature the authority
// rejects is not an error; check the returned Verification.
func (s *Session) VerifySignature(ctx context.Context, message, signature string) (timestamp.Verification, error) {
	return outcome(ctx, OpVerify, s.Verify, controller.VerifyInput{Message: message, Signature: signature})
}

// FetchPublicKey runs the public key operation and waits for it.
func (s *Session) FetchPublicKey(ctx context.Context) (timestamp.PublicKey, error) {
	return outcome(ctx, OpPublicKey, s.PublicKey, struct{}{})
}

func outcome[In, Out any](ctx context.Context, op OperationID, c *controller.Controller[In, Out], in In) (Out, error) {
	var zero Out
	st, err := c.Run(ctx, in)
	if err != nil {
		return zero, err
	}

	if st.Phase != controller.Succeeded {
		return zero, ErrOperationFailed{Op: op, Message: st.Message}
	}

	return st.Payload, nil
}
