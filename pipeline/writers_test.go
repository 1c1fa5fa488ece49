package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-asin/models"
)

func TestJSONWriterWrite(t *testing.T) {
	var buf bytes.Buffer
	writer := NewJSONWriter(&buf)

	record := successRecord("B0DYGBSM4D")
	err := writer.Write(
		models.SuccessResponse(record, 1700000000),
		models.ErrorResponse(models.CodeProductNotFound, "Product not found"),
	)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if writer.Count() != 2 {
		t.Fatalf("expected count 2, got %d", writer.Count())
	}

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["success"] != true || lines[0]["scraped_at"] != float64(1700000000) {
		t.Fatalf("unexpected success line: %v", lines[0])
	}
	data, ok := lines[0]["data"].(map[string]any)
	if !ok || data["asin"] != "B0DYGBSM4D" || data["title"] != "Echo Dot (4th Gen)" {
		t.Fatalf("unexpected data: %v", lines[0]["data"])
	}
	if lines[1]["success"] != false || lines[1]["error_code"] != models.CodeProductNotFound {
		t.Fatalf("unexpected error line: %v", lines[1])
	}
	if _, ok := lines[1]["data"]; ok {
		t.Fatalf("error envelope carries data: %v", lines[1])
	}
}

func TestJSONWriterConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	writer := NewJSONWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = writer.Write(models.ErrorResponse(models.CodeRequestFailed, "Request failed"))
		}()
	}
	wg.Wait()

	if writer.Count() != 8 {
		t.Fatalf("expected count 8, got %d", writer.Count())
	}
	if got := bytes.Count(buf.Bytes(), []byte("\n")); got != 8 {
		t.Fatalf("expected 8 lines, got %d", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONWriterSurfacesFlushErrors(t *testing.T) {
	writer := NewJSONWriter(failingWriter{})
	if err := writer.Write(models.ErrorResponse(models.CodeInternalError, "Internal server error")); err == nil {
		t.Fatalf("expected flush error")
	}
}
