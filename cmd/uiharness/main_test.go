package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiharness/cmd"
)

// --- Setup Helpers ---

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

// captureExit replaces osExit and returns a pointer to the recorded code.
func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	osExit = func(c int) { code = c }
	t.Cleanup(resetMocks)
	return &code
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(fmt.Errorf("%w: 2 of 5", cmd.ErrScenariosFailed)))
	assert.Equal(t, exitInterrupted, exitCode(fmt.Errorf("run: %w", context.Canceled)))
}

func TestMain_ExitsWithCommandStatus(t *testing.T) {
	code := captureExit(t)
	execute = func(ctx context.Context) error {
		require.NotNil(t, ctx.Done(), "context must be signal aware")
		return errors.New("boom")
	}

	main()

	assert.Equal(t, exitFailure, *code)
}

func TestHandlePanic(t *testing.T) {
	t.Run("writes the panic log and exits with the panic status", func(t *testing.T) {
		code := captureExit(t)
		var written string
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = string(data)
			return nil
		}

		func() {
			defer handlePanic()
			panic("driver exploded")
		}()

		assert.Equal(t, exitPanic, *code)
		assert.Contains(t, written, "panic: driver exploded")
		assert.Contains(t, written, "goroutine", "stack trace is included")
	})

	t.Run("still exits when the log cannot be written", func(t *testing.T) {
		code := captureExit(t)
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only file system") }

		func() {
			defer handlePanic()
			panic("again")
		}()

		assert.Equal(t, exitPanic, *code)
	})

	t.Run("does nothing without a panic", func(t *testing.T) {
		code := captureExit(t)

		func() {
			defer handlePanic()
		}()

		assert.Equal(t, -1, *code)
	})
}
