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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	timestamper "github.com/timestamper/go-timestamper"
	"github.com/timestamper/go-timestamper/config"
	"github.com/timestamper/go-timestamper/log"
	"go.yaml.in/yaml/v3"
)

// setupLogging routes library logs to w through logrus. Terminals get the text formatter,
// anything else gets JSON.
func setupLogging(level string, w io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	if isTerminal(w) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	log.SetLogger(log.NewLogrusLogger(l))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// emit writes v in the configured output format. text renders the human readable form.
func (a *app) emit(v interface{}, text func(w io.Writer)) error {
	switch a.cfg.Output {
	case config.OutputJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(a.stdout)
		if err := enc.Encode(v); err != nil {
			return err
		}

		return enc.Close()
	default:
		text(a.stdout)
		return nil
	}
}

// describe returns the message a failed operation settled on, or the error text otherwise.
func (a *app) describe(err error) string {
	var opErr timestamper.ErrOperationFailed
	if errors.As(err, &opErr) {
		return opErr.Message
	}

	return err.Error()
}

// report prints what went wrong and returns the exit code for it.
func (a *app) report(err error) int {
	fmt.Fprintf(a.stderr, "Error: %s\n", a.describe(err))
	return exitFailed
}

func usageError(a *app, msg string) int {
	fmt.Fprintf(a.stderr, "Error: %s\n", msg)
	return exitUsage
}
