package reporting

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

// Summary counts results by status.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Broken   int           `json:"broken"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// Add counts r.
func (s *Summary) Add(r *schemas.TestResult) {
	s.Total++
	s.Duration += r.Duration()
	switch r.Status {
	case schemas.StatusPassed:
		s.Passed++
	case schemas.StatusFailed:
		s.Failed++
	case schemas.StatusBroken:
		s.Broken++
	case schemas.StatusSkipped:
		s.Skipped++
	}
}

// OK reports whether nothing failed or broke.
func (s Summary) OK() bool { return s.Failed == 0 && s.Broken == 0 }

type jsonDocument struct {
	Tool    string                `json:"tool"`
	Version string                `json:"version"`
	Summary Summary               `json:"summary"`
	Results []*schemas.TestResult `json:"results"`
}

// JSONReporter buffers results and writes a single JSON document on Close.
// It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	// mu protects doc.
	mu  sync.Mutex
	doc jsonDocument
}

// NewJSONReporter creates a reporter that owns writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		doc: jsonDocument{
			Tool:    allureFramework,
			Version: toolVersion,
			Results: []*schemas.TestResult{},
		},
	}
}

func (r *JSONReporter) Write(_ context.Context, result *schemas.TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Summary.Add(result)
	r.doc.Results = append(r.doc.Results, result)
	return nil
}

// Summary returns the counts so far.
func (r *JSONReporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Summary
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Finalizing JSON report",
		zap.Int("total_results", r.doc.Summary.Total),
		zap.Int("failed", r.doc.Summary.Failed+r.doc.Summary.Broken),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.doc)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
