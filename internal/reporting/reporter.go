// Package reporting writes test case results: allure result directories for
// dashboards, a JSON run summary for pipelines, and PostgreSQL history.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/uiharness/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter consumes test results as they complete.
type Reporter interface {
	// Write processes a single test result. Implementations are safe for
	// concurrent use.
	Write(ctx context.Context, result *schemas.TestResult) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format. For "allure" output is the results
// directory; for "json" it is a file path, with "" or "stdout" meaning
// standard output.
func New(format, output, toolVersion string) (Reporter, error) {
	switch format {
	case "allure":
		w, err := NewAllureWriter(output)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "json":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if output == "" || output == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		return NewJSONReporter(&nopWriteCloser{os.Stdout}, toolVersion), nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", output, err)
	}
	return NewJSONReporter(f, toolVersion), nil
}

// Multi fans every call out to all reporters. Errors are joined; one failing
// reporter does not stop the others.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

type multi []Reporter

func (m multi) Write(ctx context.Context, result *schemas.TestResult) error {
	var errs []error
	for _, r := range m {
		if err := r.Write(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
