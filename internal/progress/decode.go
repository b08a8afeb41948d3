package progress

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// maxLineSize bounds a single progress line; result payloads stay well under this.
const maxLineSize = 1 << 20 // 1 MB

// Decode reads the worker's stdout line by line and produces progress
// messages in arrival order. Lines that are not valid progress messages are
// treated as ordinary worker output and logged, not failed: training scripts
// print freely between progress updates.
//
// The returned channel is unbuffered and closed when the stream ends, so
// consumption is sequential and blocking with respect to the worker.
func Decode(r io.Reader, logger *slog.Logger) <-chan Message {
	if logger == nil {
		logger = slog.Default()
	}
	ch := make(chan Message)

	go func() {
		defer close(ch)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !strings.HasPrefix(line, "{") {
				logger.Info("Worker output", "line", line)
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil || !msg.valid() {
				logger.Info("Worker output", "line", line)
				continue
			}
			ch <- msg
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("Worker output stream closed abnormally", "error", err)
		}
	}()

	return ch
}
