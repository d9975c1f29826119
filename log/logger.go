/*
 *
 * k6 - a next-generation load testing tool
 * Copyright (C) 2020 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package log builds this run's logrus.Logger: a console formatter that
// renders the script-facing console.log()-style "objects" field the way a
// user expects to read it, plus an optional file hook for `--log-output
// file=...`.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// consoleLogFormatter wraps another logrus.Formatter, expanding an entry's
// "objects" field (set by the console/log bridge surfaced to scripts) into
// a space-separated, best-effort JSON rendering that replaces the message
// before delegating to the wrapped formatter.
type consoleLogFormatter struct {
	logrus.Formatter
}

// Format implements logrus.Formatter.
func (f *consoleLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	objects, ok := entry.Data["objects"].([]interface{})
	if ok {
		parts := make([]string, 0, len(objects))
		for _, obj := range objects {
			if s, ok := obj.(string); ok {
				parts = append(parts, fmt.Sprintf("%q", s))
				continue
			}
			if n, ok := obj.(int); ok {
				parts = append(parts, fmt.Sprintf("%d", n))
				continue
			}
			b, err := json.Marshal(obj)
			if err != nil {
				// Can't serialize this one (e.g. a channel or func value
				// smuggled through a script) — skip it rather than fail
				// the whole line.
				continue
			}
			parts = append(parts, string(b))
		}
		entry.Message = strings.Join(parts, " ")
	}
	return f.Formatter.Format(entry)
}

// New returns a fresh logrus.Logger writing through a consoleLogFormatter
// wrapping base. base is typically a *logrus.TextFormatter in an interactive
// terminal or a *logrus.JSONFormatter otherwise.
func New(base logrus.Formatter) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&consoleLogFormatter{base})
	return logger
}

// AddFileHook parses line (see FileHookFromConfigLine) and registers the
// resulting hook on logger, returning an error from a malformed line rather
// than silently dropping logs.
func AddFileHook(ctx context.Context, logger *logrus.Logger, line string) error {
	hook, err := FileHookFromConfigLine(ctx, logger, line)
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	return nil
}
