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

package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	SetLogger(NewLogrusLogger(l).WithField("component", "test"))
	t.Cleanup(func() { SetLogger(nil) })

	Debugf("(test) wrapped: %w", errors.New("boom"))
	Warn("careful")

	out := buf.String()
	assert.Contains(t, out, "level=debug")
	assert.Contains(t, out, "(test) wrapped: boom")
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, "component=test")
}

func TestSetLoggerNilFallsBackToSilent(t *testing.T) {
	SetLogger(nil)
	assert.IsType(t, SilentLogger{}, GetLogger())
	assert.NotPanics(t, func() { Errorf("nothing %v", 1) })
}
