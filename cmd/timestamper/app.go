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
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	timestamper "github.com/timestamper/go-timestamper"
	"github.com/timestamper/go-timestamper/authority"
	"github.com/timestamper/go-timestamper/config"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitInvalid = 3
)

type command struct {
	name    string
	usage   string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, fs *pflag.FlagSet) int
}

var commands = []command{
	{
		name:    "hash",
		usage:   "hash FILE...",
		summary: "Compute the SHA-256 digest of files locally.",
		run:     runHash,
	},
	{
		name:    "timestamp",
		usage:   "timestamp (HASH | --file PATH) [--out RECEIPT]",
		summary: "Have the authority sign a hash, or the digest of a file, with the current time.",
		flags:   timestampFlags,
		run:     runTimestamp,
	},
	{
		name:    "verify",
		usage:   "verify (--message MSG --signature SIG | --receipt RECEIPT... [--offline])",
		summary: "Check a signature issued by the authority.",
		flags:   verifyFlags,
		run:     runVerify,
	},
	{
		name:    "public-key",
		usage:   "public-key",
		summary: "Print the authority's public key.",
		run:     runPublicKey,
	},
	{
		name:    "health",
		usage:   "health [--attempts N] [--interval D]",
		summary: "Check that the authority answers, retrying a few times.",
		flags:   healthFlags,
		run:     runHealth,
	},
}

// app is what every command gets once flags and configuration are resolved.
type app struct {
	cfg     config.Config
	client  *authority.Client
	session *timestamper.Session
	stdout  io.Writer
	stderr  io.Writer
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}

	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: timestamper COMMAND [FLAGS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'timestamper COMMAND --help' for the flags of a command.")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	}

	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: timestamper %s\n\n%s\n\nFlags:\n", cmd.usage, cmd.summary)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}

		return exitUsage
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if err := setupLogging(cfg.LogLevel, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	client := authority.New(cfg.AuthorityURL, authority.WithHeaders(cfg.HTTPHeaders()))
	a := &app{
		cfg:     cfg,
		client:  client,
		session: timestamper.NewSession(client),
		stdout:  stdout,
		stderr:  stderr,
	}

	return cmd.run(ctx, a, fs)
}
