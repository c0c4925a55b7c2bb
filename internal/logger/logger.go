// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the filesystem's severity-leveled log output. It
// wraps log/slog with a level set finer than slog's four built-in levels
// (TRACE and DEBUG both sit below INFO) and a chooseable text/json handler,
// matching the severities a FUSE mount needs to report: protocol traffic at
// TRACE, cache decisions at DEBUG, mount lifecycle at INFO, recoverable
// server errors at WARN, and everything that surfaces as an errno at ERROR.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Severity levels, spaced out from the slog defaults so TRACE and DEBUG both
// fit below slog.LevelInfo.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// LevelOff is above any level ever logged at, used to silence output.
	LevelOff = slog.Level(16)
)

// Format selects the on-disk/on-terminal encoding of log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu            sync.RWMutex
	defaultLogger = slog.New(newHandler(os.Stderr, FormatText, LevelInfo))
)

func levelString(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func newHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl, _ := a.Value.Any().(slog.Level)
				a.Key = "severity"
				a.Value = slog.StringValue(levelString(lvl))
			}
			return a
		},
	}

	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Init configures the package-level logger. Called once at mount time from
// the parsed configuration; safe to call again in tests.
func Init(w io.Writer, format Format, level string) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = slog.New(newHandler(w, format, ParseLevel(level)))
}

// ParseLevel maps a configuration string to a severity level. Unknown values
// fall back to INFO.
func ParseLevel(level string) slog.Level {
	switch level {
	case "TRACE", "trace":
		return LevelTrace
	case "DEBUG", "debug":
		return LevelDebug
	case "INFO", "info":
		return LevelInfo
	case "WARNING", "warning", "WARN", "warn":
		return LevelWarn
	case "ERROR", "error":
		return LevelError
	case "OFF", "off":
		return LevelOff
	default:
		return LevelInfo
	}
}

func logf(level slog.Level, format string, v ...interface{}) {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }
