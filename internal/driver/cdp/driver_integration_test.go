package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/driver"
)

// These tests launch a real Chromium. Set UIHARNESS_CHROME to its path to run them.
func newIntegrationDriver(t *testing.T) *Driver {
	t.Helper()
	execPath := os.Getenv("UIHARNESS_CHROME")
	if execPath == "" || testing.Short() {
		t.Skip("UIHARNESS_CHROME not set; skipping browser integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	d, err := New(ctx, Options{
		Browser:  schemas.BrowserChrome,
		ExecPath: execPath,
		Headless: true,
		Width:    1280,
		Height:   800,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Quit(context.Background()) })
	return d
}

func TestDriverAgainstChrome(t *testing.T) {
	d := newIntegrationDriver(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Fixture</title></head><body>
<input id="q" value="old">
<a href="/other" target="_blank">Other</a>
<select id="s"><option>a</option><option>b</option></select>
</body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, d.Get(ctx, srv.URL))
	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fixture", title)

	input, err := d.FindElement(ctx, driver.ID("q"))
	require.NoError(t, err)
	require.NoError(t, input.ClearByKeys(ctx))
	require.NoError(t, input.SendKeys(ctx, "new"))
	value, err := input.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "new", value)

	shown, err := input.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.True(t, shown)
	enabled, err := input.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	require.NoError(t, input.ScrollIntoView(ctx))
	require.NoError(t, input.Hover(ctx))

	sel, err := d.FindElement(ctx, driver.CSS("#s"))
	require.NoError(t, err)
	require.NoError(t, sel.SelectByIndex(ctx, 1))

	link, err := d.FindElement(ctx, driver.LinkText("Other"))
	require.NoError(t, err)
	text, err := link.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Other", text)
	require.NoError(t, link.Click(ctx))

	assert.Eventually(t, func() bool {
		handles, err := d.WindowHandles(ctx)
		return err == nil && len(handles) == 2
	}, 10*time.Second, 100*time.Millisecond)

	got, err := d.ExecuteScript(ctx, "return arguments[0] + 1", 41)
	require.NoError(t, err)
	assert.EqualValues(t, 42, got)

	png, err := d.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
