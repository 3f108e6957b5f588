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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/timestamper/go-timestamper/log"
)

const (
	KeyConfig       = "config"
	KeyAuthorityURL = "authority-url"
	KeyHeaders      = "headers"
	KeyLogLevel     = "log-level"
	KeyFormatTime   = "format-time"
	KeyOutput       = "output"

	EnvPrefix = "TIMESTAMPER"

	DefaultConfigFile   = "~/.timestamper.yaml"
	DefaultAuthorityURL = "http://localhost:5000"
	DefaultLogLevel     = "info"
)

type Output string

const (
	OutputText Output = "text"
	OutputJSON Output = "json"
	OutputYAML Output = "yaml"
)

// Config holds the settings shared by every command.
type Config struct {
	AuthorityURL string            `mapstructure:"authority-url" json:"authority-url,omitempty" yaml:"authority-url,omitempty" jsonschema:"title=Authority URL,description=Base URL of the timestamping authority,default=http://localhost:5000,format=uri"`
	Headers      map[string]string `mapstructure:"headers" json:"headers,omitempty" yaml:"headers,omitempty" jsonschema:"title=Headers,description=Extra HTTP headers sent with every request to the authority"`
	LogLevel     string            `mapstructure:"log-level" json:"log-level,omitempty" yaml:"log-level,omitempty" jsonschema:"title=Log Level,default=info,enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	FormatTime   bool              `mapstructure:"format-time" json:"format-time,omitempty" yaml:"format-time,omitempty" jsonschema:"title=Format Time,description=Show timestamps as dates instead of unix seconds"`
	Output       Output            `mapstructure:"output" json:"output,omitempty" yaml:"output,omitempty" jsonschema:"title=Output,default=text,enum=text,enum=json,enum=yaml"`
}

type ErrInvalidConfig struct {
	Key    string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Key, e.Reason)
}

// RegisterFlags adds the shared flags to fs. Their values take precedence over the
// environment and the config file once passed to Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, DefaultConfigFile, "Path to the config file")
	fs.String(KeyAuthorityURL, DefaultAuthorityURL, "Base URL of the timestamping authority")
	fs.StringToString("header", nil, "Extra HTTP header sent to the authority, as name=value (repeatable)")
	fs.String(KeyLogLevel, DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.Bool(KeyFormatTime, false, "Show timestamps as dates instead of unix seconds")
	fs.StringP(KeyOutput, "o", string(OutputText), "Output format (text, json, yaml)")
}

type options struct {
	defaultConfigFile string
}

type Option func(*options)

// WithDefaultConfigFile replaces ~/.timestamper.yaml as the file read when --config is not set.
func WithDefaultConfigFile(path string) Option {
	return func(o *options) {
		o.defaultConfigFile = path
	}
}

// Load resolves the configuration from, lowest precedence first: defaults, the config file,
// TIMESTAMPER_* environment variables and the flags in fs that were set explicitly. A missing
// default config file is ignored; a missing file named with --config is an error.
func Load(fs *pflag.FlagSet, opts ...Option) (Config, error) {
	o := options{defaultConfigFile: DefaultConfigFile}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetDefault(KeyAuthorityURL, DefaultAuthorityURL)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyFormatTime, false)
	v.SetDefault(KeyOutput, string(OutputText))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, key := range []string{KeyAuthorityURL, KeyLogLevel, KeyFormatTime, KeyOutput} {
			if f := fs.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %v: %w", key, err)
				}
			}
		}

		if f := fs.Lookup("header"); f != nil {
			if err := v.BindPFlag(KeyHeaders, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag header: %w", err)
			}
		}
	}

	path, explicit := o.defaultConfigFile, false
	if fs != nil && fs.Changed(KeyConfig) {
		path, _ = fs.GetString(KeyConfig)
		explicit = true
	}

	if err := readConfigFile(v, path, explicit); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not unmarshal config: %w", err)
	}

	cfg.AuthorityURL = strings.TrimRight(strings.TrimSpace(cfg.AuthorityURL), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		return nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path %v: %w", path, err)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			log.Debugf("(config) no config file at %v", expanded)
			return nil
		}

		return fmt.Errorf("error reading config file %v: %w", expanded, err)
	}

	log.Debugf("(config) loaded config file %v", expanded)
	return nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.AuthorityURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidConfig{Key: KeyAuthorityURL, Reason: fmt.Sprintf("%q is not an http(s) URL", c.AuthorityURL)}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidConfig{Key: KeyLogLevel, Reason: err.Error()}
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return ErrInvalidConfig{Key: KeyOutput, Reason: fmt.Sprintf("%q is not one of text, json, yaml", c.Output)}
	}

	return nil
}

// HTTPHeaders returns the configured extra headers in canonical form.
func (c Config) HTTPHeaders() http.Header {
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}

	return h
}
