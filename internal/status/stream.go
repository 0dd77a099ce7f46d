package status

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// framePrefix is the literal tag in front of each JSON payload. Consumers
// split on the blank line between blocks and strip the prefix before
// parsing, so the stream is also valid server-sent events.
const framePrefix = "data: "

// StreamWriter encodes events one block at a time: prefix, JSON payload,
// blank-line delimiter. If the underlying writer supports flushing, each
// block is flushed immediately so a consumer sees transitions live.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter wraps w for event-block output.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// Write emits a single event block.
func (s *StreamWriter) Write(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "%s%s\n\n", framePrefix, payload); err != nil {
		return fmt.Errorf("writing event block: %w", err)
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Drain consumes every event from ch and writes it to the stream in
// arrival order. It returns the first write error, after which remaining
// events are discarded so the producer is never blocked forever.
func (s *StreamWriter) Drain(ch <-chan Event) error {
	var writeErr error
	for ev := range ch {
		if writeErr != nil {
			continue
		}
		writeErr = s.Write(ev)
	}
	return writeErr
}
