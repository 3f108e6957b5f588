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

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a logrus entry to Logger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. Fields attached with WithField are carried on every message.
func NewLogrusLogger(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l LogrusLogger) WithField(key string, value interface{}) LogrusLogger {
	return LogrusLogger{entry: l.entry.WithField(key, value)}
}

func (l LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l LogrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l LogrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l LogrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l LogrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
