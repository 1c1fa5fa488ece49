package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// JSONWriter writes response envelopes as JSON lines.
type JSONWriter struct {
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
	count   int
}

// NewJSONWriter wraps w. The caller owns w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	buffer := bufio.NewWriter(w)
	return &JSONWriter{
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}
}

// Write appends envelopes, one per line, and flushes.
func (jw *JSONWriter) Write(responses ...models.ProductResponse) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, resp := range responses {
		if err := jw.encoder.Encode(resp); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.count++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Count reports how many envelopes were written.
func (jw *JSONWriter) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.count
}
