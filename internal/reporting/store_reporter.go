package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/store"
)

// RunSaver is the part of store.Store the reporter needs.
type RunSaver interface {
	SaveRun(ctx context.Context, run store.Run, results []*schemas.TestResult) error
}

// StoreReporter collects a run's results and saves them in one transaction
// on Close, so a crashed run leaves no partial rows.
type StoreReporter struct {
	saver   RunSaver
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	run     store.Run
	results []*schemas.TestResult
}

// NewStoreReporter starts a run for opts. timeout bounds the save on Close.
func NewStoreReporter(saver RunSaver, opts schemas.RunOptions, timeout time.Duration) *StoreReporter {
	r := &StoreReporter{saver: saver, timeout: timeout, now: time.Now}
	r.run = store.Run{ID: uuid.NewString(), StartedAt: r.now(), Options: opts}
	return r
}

// RunID identifies the run in the database.
func (r *StoreReporter) RunID() string { return r.run.ID }

func (r *StoreReporter) Write(_ context.Context, result *schemas.TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *StoreReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.FinishedAt = r.now()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.saver.SaveRun(ctx, r.run, r.results)
}
