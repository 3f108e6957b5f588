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
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/timestamper/go-timestamper/controller"
	"github.com/timestamper/go-timestamper/cryptoutil"
	"github.com/timestamper/go-timestamper/log"
	"github.com/timestamper/go-timestamper/receipt"
	"github.com/timestamper/go-timestamper/timestamp"
	"golang.org/x/sync/errgroup"
)

type hashOutput struct {
	cryptoutil.FileDigest `yaml:",inline"`
	Error                 string `json:"error,omitempty" yaml:"error,omitempty"`
}

// runHash hashes every file on its own controller so one slow or unreadable file does not
// hold up the rest.
func runHash(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{""}
	}

	results := make([]hashOutput, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			st, err := controller.NewHashController().Run(ctx, path)
			if err != nil {
				return err
			}

			results[i] = hashOutput{FileDigest: st.Payload, Error: st.Message}
			results[i].Path = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return a.report(err)
	}

	code := exitOK
	for _, r := range results {
		if r.Error != "" {
			code = exitFailed
		}
	}

	err := a.emit(results, func(w io.Writer) {
		for _, r := range results {
			if r.Error != "" {
				name := r.Path
				if name == "" {
					name = "timestamper"
				}

				fmt.Fprintf(a.stderr, "%s: %s\n", name, r.Error)
				continue
			}

			fmt.Fprintf(w, "%s  %s\n", r.Digest, r.Path)
		}
	})
	if err != nil {
		return a.report(err)
	}

	return code
}

func timestampFlags(fs *pflag.FlagSet) {
	fs.String("file", "", "Timestamp the SHA-256 digest of this file")
	fs.String("out", "", "Save a receipt to this path (.yaml, .yml or .json)")
}

type timestampOutput struct {
	timestamp.Result `yaml:",inline"`
	File             *cryptoutil.FileDigest `json:"file,omitempty" yaml:"file,omitempty"`
	Receipt          string                 `json:"receipt,omitempty" yaml:"receipt,omitempty"`
}

func runTimestamp(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	file, _ := fs.GetString("file")
	out, _ := fs.GetString("out")
	if file != "" && fs.NArg() > 0 {
		return usageError(a, "give either a hash or --file, not both")
	}

	if fs.NArg() > 1 {
		return usageError(a, "only one hash can be timestamped at a time")
	}

	if out != "" {
		if _, err := receipt.FormatFromPath(out); err != nil {
			return usageError(a, err.Error())
		}
	}

	var (
		res timestamp.Result
		fd  *cryptoutil.FileDigest
		err error
	)

	if file != "" {
		var digest cryptoutil.FileDigest
		res, digest, err = a.session.TimestampFile(ctx, file)
		fd = &digest
	} else {
		res, err = a.session.TimestampHash(ctx, fs.Arg(0))
	}

	if err != nil {
		return a.report(err)
	}

	if out != "" {
		if err := a.saveReceipt(ctx, out, res, fd); err != nil {
			return a.report(err)
		}
	}

	err = a.emit(timestampOutput{Result: res, File: fd, Receipt: out}, func(w io.Writer) {
		if fd != nil {
			fmt.Fprintf(w, "File:          %s (%s, %d bytes)\n", fd.Path, fd.MediaType, fd.Size)
		}

		fmt.Fprintf(w, "Hash:          %s\n", res.Hash)
		fmt.Fprintf(w, "Timestamp:     %s\n", timestamp.FormatTimestamp(res.Timestamp, a.cfg.FormatTime, nil))
		fmt.Fprintf(w, "Exact message: %s\n", res.ExactMessage)
		fmt.Fprintf(w, "Signature:     %s\n", res.Signature)
		if out != "" {
			fmt.Fprintf(w, "Receipt:       %s\n", out)
		}
	})
	if err != nil {
		return a.report(err)
	}

	return exitOK
}

// saveReceipt records the key the authority currently signs with next to the timestamp. A
// receipt without a key can still be checked online, so a failed key fetch only warns.
func (a *app) saveReceipt(ctx context.Context, path string, res timestamp.Result, fd *cryptoutil.FileDigest) error {
	pk, err := a.session.FetchPublicKey(ctx)
	if err != nil {
		log.Warnf("(cmd) saving receipt without the authority public key: %v", err)
	}

	return receipt.Write(path, receipt.Receipt{
		Result:    res,
		Authority: a.client.URL(),
		PublicKey: pk.PublicKey,
		File:      fd,
	})
}

func verifyFlags(fs *pflag.FlagSet) {
	fs.String("message", "", "The exact message that was signed")
	fs.String("signature", "", "Base64 encoded signature")
	fs.StringArray("receipt", nil, "Receipt to verify (repeatable)")
	fs.Bool("offline", false, "Check receipt signatures locally instead of asking the authority")
	fs.String("public-key", "", "Trusted PEM public key for --offline (default: the authority's current key)")
}

type receiptVerification struct {
	timestamp.Verification `yaml:",inline"`
	Receipt                string `json:"receipt" yaml:"receipt"`
}

func runVerify(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	paths, _ := fs.GetStringArray("receipt")
	if len(paths) == 0 {
		message, _ := fs.GetString("message")
		signature, _ := fs.GetString("signature")
		v, err := a.session.VerifySignature(ctx, message, signature)
		if err != nil {
			return a.report(err)
		}

		if err := a.emit(v, func(w io.Writer) { printVerification(w, "", v) }); err != nil {
			return a.report(err)
		}

		return verificationCode(v)
	}

	if fs.Changed("message") || fs.Changed("signature") {
		return usageError(a, "--receipt cannot be combined with --message or --signature")
	}

	offline, _ := fs.GetBool("offline")
	keyPath, _ := fs.GetString("public-key")
	if keyPath != "" && !offline {
		return usageError(a, "--public-key only applies with --offline")
	}

	var keys timestamp.KeyProvider = receipt.NewKeyCache(a.client)
	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return usageError(a, fmt.Sprintf("failed to read public key: %v", err))
		}

		if _, err := cryptoutil.NewVerifierFromPEM(data); err != nil {
			return usageError(a, fmt.Sprintf("invalid public key %v: %v", keyPath, err))
		}

		keys = receipt.StaticKey(data)
	}

	results := make([]receiptVerification, 0, len(paths))
	code := exitOK
	for _, path := range paths {
		r, err := receipt.Read(path)
		if err != nil {
			return a.report(err)
		}

		v, err := a.verifyReceipt(ctx, r, offline, keys)
		if err != nil {
			return a.report(err)
		}

		if c := verificationCode(v); c != exitOK {
			code = c
		}

		results = append(results, receiptVerification{Receipt: path, Verification: v})
	}

	err := a.emit(results, func(w io.Writer) {
		for _, r := range results {
			printVerification(w, r.Receipt, r.Verification)
		}
	})
	if err != nil {
		return a.report(err)
	}

	return code
}

// verifyReceipt checks that the signed message matches what the receipt claims before any
// signature check, so a receipt with a swapped hash or file never passes. Offline checks only
// trust keys; when that key cannot be obtained the receipt is reported as unverified.
func (a *app) verifyReceipt(ctx context.Context, r receipt.Receipt, offline bool, keys timestamp.KeyProvider) (timestamp.Verification, error) {
	if v, ok := receipt.CheckMessage(r); !ok {
		return v, nil
	}

	if !offline {
		return a.session.VerifySignature(ctx, r.ExactMessage, r.Signature)
	}

	v, err := receipt.Verify(ctx, r, keys)
	var keyErr receipt.ErrKeyUnavailable
	if errors.As(err, &keyErr) {
		log.Warnf("(cmd) could not obtain a trusted public key: %v", keyErr.Err)
		return timestamp.Verification{Valid: false, Error: "public key unverified"}, nil
	}

	return v, err
}

func printVerification(w io.Writer, name string, v timestamp.Verification) {
	prefix := ""
	if name != "" {
		prefix = name + ": "
	}

	if v.Valid {
		fmt.Fprintf(w, "%sSignature is valid.\n", prefix)
		return
	}

	reason := ""
	if v.Error != "" {
		reason = " (" + v.Error + ")"
	}

	fmt.Fprintf(w, "%sSignature is NOT valid%s.\n", prefix, reason)
}

func verificationCode(v timestamp.Verification) int {
	if v.Valid {
		return exitOK
	}

	return exitInvalid
}

func runPublicKey(ctx context.Context, a *app, _ *pflag.FlagSet) int {
	pk, err := a.session.FetchPublicKey(ctx)
	if err != nil {
		return a.report(err)
	}

	err = a.emit(pk, func(w io.Writer) {
		fmt.Fprint(w, pk.PublicKey)
		if !strings.HasSuffix(pk.PublicKey, "\n") {
			fmt.Fprintln(w)
		}
	})
	if err != nil {
		return a.report(err)
	}

	return exitOK
}

func healthFlags(fs *pflag.FlagSet) {
	fs.Int("attempts", 3, "Number of times to try reaching the authority")
	fs.Duration("interval", 5*time.Second, "Time to wait between attempts")
}

type healthOutput struct {
	Healthy  bool   `json:"healthy" yaml:"healthy"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// runHealth asks for the public key until it gets one or runs out of attempts. This is the
// only place requests to the authority are retried.
func runHealth(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	attempts, _ := fs.GetInt("attempts")
	interval, _ := fs.GetDuration("interval")
	if attempts < 1 {
		return usageError(a, "--attempts must be at least 1")
	}

	var out healthOutput
	var lastErr error
	for out.Attempts < attempts {
		out.Attempts++
		_, lastErr = a.session.FetchPublicKey(ctx)
		if lastErr == nil {
			out.Healthy = true
			break
		}

		log.Warnf("(health) attempt %d of %d failed: %v", out.Attempts, attempts, lastErr)
		if out.Attempts == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return a.report(ctx.Err())
		case <-time.After(interval):
		}
	}

	if lastErr != nil {
		out.Error = a.describe(lastErr)
	}

	err := a.emit(out, func(w io.Writer) {
		if out.Healthy {
			fmt.Fprintf(w, "Authority at %s is healthy.\n", a.client.URL())
		}
	})
	if err != nil {
		return a.report(err)
	}

	if !out.Healthy {
		return a.report(lastErr)
	}

	return exitOK
}
