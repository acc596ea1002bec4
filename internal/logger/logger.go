// Copyright 2023 Google Inc. All Rights Reserved.
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

// Package logger provides a slog-based structured logger with the custom
// severity ladder cryptofs' cfg package exposes (TRACE..OFF), a text or JSON
// wire format, and optional rotated file output via lumberjack.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cryptofs/cryptofs/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom levels, layered around slog's four built-in ones so that TRACE sits
// below DEBUG and OFF sits above ERROR.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// loggerFactory owns the handle(s) a logger writes to and knows how to
// rebuild a slog.Logger from the currently configured format/level/file.
type loggerFactory struct {
	// file is the non-blocking rotated sink wired up by InitLogFile, or nil
	// if logging only goes to stderr.
	file            *AsyncLogger
	format          string
	level           string
	logRotateConfig cfg.LogRotateConfig
}

var defaultLoggerFactory = &loggerFactory{
	level:  string(cfg.InfoLogSeverity),
	format: "text",
}

var defaultLogger *slog.Logger
var programLevel = new(slog.LevelVar)

func init() {
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
}

// setLoggingLevel maps a cfg-style severity string onto the slog.LevelVar
// that gates a handler.
func setLoggingLevel(level string, pl *slog.LevelVar) {
	switch cfg.LogSeverity(level) {
	case cfg.TraceLogSeverity:
		pl.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		pl.Set(LevelDebug)
	case cfg.WarningLogSeverity:
		pl.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		pl.Set(LevelError)
	case cfg.OffLogSeverity:
		pl.Set(LevelOff)
	default:
		pl.Set(LevelInfo)
	}
}

// jsonTimestamp mirrors the wire shape {"seconds":N,"nanos":N} used by the
// JSON handler below.
type jsonTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int   `json:"nanos"`
}

type jsonRecord struct {
	Timestamp jsonTimestamp `json:"timestamp"`
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
}

// textOrJSONHandler is a minimal slog.Handler that renders each record as
// either `time="..." severity=LEVEL message="..."` or the json shape above,
// ignoring attrs/groups beyond the message - this logger is a human-readable
// event sink, not a structured telemetry pipeline.
type textOrJSONHandler struct {
	w       io.Writer
	leveler slog.Leveler
	format  string
	prefix  string
}

func (h *textOrJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.leveler.Level()
}

func (h *textOrJSONHandler) Handle(_ context.Context, r slog.Record) error {
	severity, ok := levelNames[r.Level]
	if !ok {
		severity = r.Level.String()
	}
	message := h.prefix + r.Message

	if h.format == "json" {
		rec := jsonRecord{
			Timestamp: jsonTimestamp{
				Seconds: r.Time.Unix(),
				Nanos:   r.Time.Nanosecond(),
			},
			Severity: severity,
			Message:  message,
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(h.w, string(b))
		return err
	}

	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n", r.Time.Format(time.RFC3339Nano), severity, message)
	return err
}

func (h *textOrJSONHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textOrJSONHandler) WithGroup(_ string) slog.Handler      { return h }

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, leveler slog.Leveler, prefix string) slog.Handler {
	format := f.format
	if format == "" {
		format = "json"
	}
	if format != "json" {
		format = "text"
	}
	return &textOrJSONHandler{w: w, leveler: leveler, format: format, prefix: prefix}
}

// SetLogFormat switches the default logger between "text" and "json" (the
// empty string defaults to "json").
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	rebuild()
}

const asyncLogBufferSize = 256

func rebuild() {
	var w io.Writer = os.Stderr
	if defaultLoggerFactory.file != nil {
		w = defaultLoggerFactory.file
	}
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

// InitLogFile points the default logger at a rotated file as described by
// config, replacing stderr as the sink. Closes any previously opened file.
func InitLogFile(config cfg.LoggingConfig) error {
	if defaultLoggerFactory.file != nil {
		_ = defaultLoggerFactory.file.Close()
		defaultLoggerFactory.file = nil
	}

	defaultLoggerFactory.format = config.Format
	defaultLoggerFactory.level = string(config.Severity)
	defaultLoggerFactory.logRotateConfig = config.LogRotate

	if config.FilePath == "" {
		rebuild()
		return nil
	}

	lj := &lumberjack.Logger{
		Filename:   string(config.FilePath),
		MaxSize:    config.LogRotate.MaxFileSizeMb,
		MaxBackups: config.LogRotate.BackupFileCount,
		Compress:   config.LogRotate.Compress,
	}
	defaultLoggerFactory.file = NewAsyncLogger(lj, asyncLogBufferSize)
	rebuild()
	return nil
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
