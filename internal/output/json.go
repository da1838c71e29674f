package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ring-scanner/internal/types"
)

// JSONReporter writes each report as a pretty-printed JSON document
type JSONReporter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{w: w}
}

func (j *JSONReporter) Report(_ context.Context, report *types.ScanReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
