package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

const allureFramework = "uiharness"

// allureResult is the subset of the allure result schema the dashboards read.
type allureResult struct {
	UUID          string             `json:"uuid"`
	HistoryID     string             `json:"historyId"`
	Name          string             `json:"name"`
	FullName      string             `json:"fullName"`
	Status        string             `json:"status"`
	Stage         string             `json:"stage"`
	StatusDetails *allureDetails     `json:"statusDetails,omitempty"`
	Start         int64              `json:"start"`
	Stop          int64              `json:"stop"`
	Labels        []allureNameValue  `json:"labels"`
	Parameters    []allureNameValue  `json:"parameters"`
	Attachments   []allureAttachment `json:"attachments"`
}

type allureDetails struct {
	Message string `json:"message"`
}

type allureNameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type allureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureWriter writes one <uuid>-result.json per test case plus attachment
// files into a directory the allure command line understands. On Close it
// writes environment.properties describing the run options seen.
type AllureWriter struct {
	dir    string
	logger *zap.Logger

	mu  sync.Mutex
	env map[string]string
}

// NewAllureWriter creates dir if needed.
func NewAllureWriter(dir string) (*AllureWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &AllureWriter{
		dir:    dir,
		logger: observability.GetLogger().Named("allure"),
		env:    make(map[string]string),
	}, nil
}

// Dir returns the results directory.
func (w *AllureWriter) Dir() string { return w.dir }

func (w *AllureWriter) Write(ctx context.Context, r *schemas.TestResult) error {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	doc := allureResult{
		UUID:        id,
		HistoryID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.FullName)).String(),
		Name:        r.Name,
		FullName:    r.FullName,
		Status:      string(r.Status),
		Stage:       "finished",
		Start:       r.Start.UnixMilli(),
		Stop:        r.Stop.UnixMilli(),
		Labels:      []allureNameValue{{Name: "framework", Value: allureFramework}, {Name: "suite", Value: suiteOf(r.FullName)}},
		Parameters:  []allureNameValue{},
		Attachments: []allureAttachment{},
	}
	if r.Message != "" {
		doc.StatusDetails = &allureDetails{Message: r.Message}
	}
	for _, kv := range r.Options.Labels() {
		doc.Parameters = append(doc.Parameters, allureNameValue{Name: kv[0], Value: kv[1]})
	}

	for _, a := range r.Attachments {
		att, err := w.writeAttachment(a)
		if err != nil {
			return err
		}
		doc.Attachments = append(doc.Attachments, att)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", r.Name, err)
	}
	path := filepath.Join(w.dir, id+"-result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result %s: %w", path, err)
	}

	w.mu.Lock()
	for _, kv := range r.Options.Labels() {
		w.env[kv[0]] = kv[1]
	}
	w.mu.Unlock()

	w.logger.Debug("Wrote allure result.", zap.String("name", r.Name), zap.String("status", string(r.Status)))
	return nil
}

// writeAttachment persists in-memory data under a fresh name. Attachments
// that only carry a Path are copied in so the results directory stays
// self contained.
func (w *AllureWriter) writeAttachment(a schemas.Attachment) (allureAttachment, error) {
	data := a.Data
	if len(data) == 0 && a.Path != "" {
		b, err := os.ReadFile(a.Path)
		if err != nil {
			return allureAttachment{}, fmt.Errorf("failed to read attachment %s: %w", a.Path, err)
		}
		data = b
	}
	source := uuid.NewString() + "-attachment" + extensionFor(a.MimeType)
	if err := os.WriteFile(filepath.Join(w.dir, source), data, 0o644); err != nil {
		return allureAttachment{}, fmt.Errorf("failed to write attachment %s: %w", a.Name, err)
	}
	return allureAttachment{Name: a.Name, Source: source, Type: a.MimeType}, nil
}

// Close writes environment.properties.
func (w *AllureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(w.env))
	for k := range w.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, w.env[k])
	}
	path := filepath.Join(w.dir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	default:
		return ""
	}
}

// suiteOf derives the suite label from a slash separated test name.
func suiteOf(fullName string) string {
	if i := strings.Index(fullName, "/"); i > 0 {
		return fullName[:i]
	}
	return fullName
}
