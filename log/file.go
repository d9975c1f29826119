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

package log

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// fileHook is a logrus.Hook that appends formatted log lines to a local
// file, buffered and flushed from a single goroutine so concurrent loggers
// never contend on the same *os.File.
type fileHook struct {
	path   string
	levels []logrus.Level

	loglines chan []byte
	w        io.WriteCloser
	bw       *bufio.Writer
}

// FileHookFromConfigLine parses a `--log-output file=path,level=info` style
// configuration line and returns a logrus.Hook writing to that file. ctx
// governs the hook's background flush loop: cancelling it flushes and
// closes the underlying file.
func FileHookFromConfigLine(ctx context.Context, _ *logrus.Logger, line string) (logrus.Hook, error) {
	parts := strings.Split(line, ",")

	path, ok := strings.CutPrefix(parts[0], "file=")
	if !ok {
		return nil, fmt.Errorf(
			"logfile configuration should be in the form `file=path-to-local-file` but is `%s`", line)
	}
	if path == "" {
		return nil, errors.New("filepath must not be empty")
	}
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid logfile path %q: must name a file, not a directory", path)
	}

	levels := logrus.AllLevels
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("unknown logfile config key %s", part)
		}
		switch kv[0] {
		case "level":
			lvls, err := parseLevels(kv[1])
			if err != nil {
				return nil, err
			}
			levels = lvls
		default:
			return nil, fmt.Errorf("unknown logfile config key %s", kv[0])
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("couldn't create logfile directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("couldn't open logfile: %w", err)
	}

	hook := &fileHook{
		path:   path,
		levels: levels,
		w:      f,
		bw:     bufio.NewWriter(f),
	}
	hook.loglines = hook.loop(ctx)
	return hook, nil
}

// Levels implements logrus.Hook.
func (h *fileHook) Levels() []logrus.Level { return h.levels }

// Fire implements logrus.Hook: it formats entry with its own logger's
// formatter and queues the result for the background flush loop.
func (h *fileHook) Fire(entry *logrus.Entry) error {
	b, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	h.loglines <- b
	return nil
}

// loop drains lines onto the buffered writer until ctx is cancelled, then
// flushes and closes the underlying file. It returns the channel Fire sends
// to, rather than reading h.loglines directly, so tests can wire a fileHook
// built from a struct literal without going through FileHookFromConfigLine.
func (h *fileHook) loop(ctx context.Context) chan []byte {
	lines := make(chan []byte)

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		defer func() {
			_ = h.bw.Flush()
			_ = h.w.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case line := <-lines:
				_, _ = h.bw.Write(line)
			case <-ticker.C:
				_ = h.bw.Flush()
			}
		}
	}()

	return lines
}
