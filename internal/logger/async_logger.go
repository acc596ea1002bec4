// Copyright 2025 Google LLC
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

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncLogger decouples log writers from the underlying io.Writer (typically
// a *lumberjack.Logger performing rotation) via a buffered channel, so that a
// slow or blocked rotation target never stalls the goroutine producing log
// lines. When the buffer is full, the oldest queued message is dropped to
// make room; a warning is printed to stderr only if the new message still
// cannot be queued after that, in which case the new message is dropped.
type AsyncLogger struct {
	w       io.WriteCloser
	entries chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewAsyncLogger starts a background goroutine draining into w. bufferSize
// bounds the number of queued-but-not-yet-written messages.
func NewAsyncLogger(w io.WriteCloser, bufferSize int) *AsyncLogger {
	al := &AsyncLogger{
		w:       w,
		entries: make(chan []byte, bufferSize),
		done:    make(chan struct{}),
	}
	go al.run()
	return al
}

func (al *AsyncLogger) run() {
	defer close(al.done)
	for entry := range al.entries {
		if _, err := al.w.Write(entry); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write failed: %v\n", err)
		}
	}
}

// Write implements io.Writer. It copies p (the caller retains ownership of
// its buffer) and enqueues it, dropping the oldest queued entry if the
// buffer is full rather than blocking the caller.
func (al *AsyncLogger) Write(p []byte) (int, error) {
	entry := make([]byte, len(p))
	copy(entry, p)

	select {
	case al.entries <- entry:
	default:
		select {
		case <-al.entries:
		default:
		}
		select {
		case al.entries <- entry:
		default:
			fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
		}
	}
	return len(p), nil
}

// Close drains the queue, closes the underlying writer, and waits for the
// background goroutine to exit. Safe to call more than once.
func (al *AsyncLogger) Close() error {
	var err error
	al.once.Do(func() {
		close(al.entries)
		<-al.done
		err = al.w.Close()
	})
	return err
}
