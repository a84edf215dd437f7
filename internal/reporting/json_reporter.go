package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// jsonReport is the envelope around the flow list in JSON output.
type jsonReport struct {
	Tool  string              `json:"tool"`
	Flows []schemas.TaintFlow `json:"flows"`
}

// JSONReporter writes the flow list as a single pretty-printed JSON
// document. It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	mu    sync.Mutex
	flows []schemas.TaintFlow
}

// NewJSONReporter creates a reporter producing JSON output. It takes
// ownership of the writer.
func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: logger.Named("json_reporter"),
		flows:  []schemas.TaintFlow{},
	}
}

// Write buffers flows for the final document.
func (r *JSONReporter) Write(flows []schemas.TaintFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = append(r.flows, flows...)
	return nil
}

// Close emits the buffered flows and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(jsonReport{Tool: ToolName, Flows: r.flows})
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
