package drivertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

const home = `<html><head><title>Home</title></head><body>
<a id="same" href="https://app.test/next">Next</a>
<a id="blank" href="https://docs.test/" target="_blank">Docs</a>
<button id="hidden" hidden>Invisible</button>
<div style="display: none"><span id="nested">Nested</span></div>
<select id="country"><option>A</option><option>B</option></select>
</body></html>`

func TestDriverNavigation(t *testing.T) {
	ctx := context.Background()
	d := New().AddPage("https://app.test/", home).AddPage("https://app.test/next", "<p>next</p>")

	require.NoError(t, d.Get(ctx, "https://app.test/"))
	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", title)

	el, err := d.FindElement(ctx, driver.ID("same"))
	require.NoError(t, err)
	require.NoError(t, el.Click(ctx))

	url, err := d.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/next", url)

	require.NoError(t, d.Back(ctx))
	url, _ = d.CurrentURL(ctx)
	assert.Equal(t, "https://app.test/", url)
}

func TestDriverWindows(t *testing.T) {
	ctx := context.Background()
	d := New().AddPage("https://app.test/", home)
	require.NoError(t, d.Get(ctx, "https://app.test/"))

	el, err := d.FindElement(ctx, driver.LinkText("Docs"))
	require.NoError(t, err)
	require.NoError(t, el.Click(ctx))

	handles, err := d.WindowHandles(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 2)

	require.NoError(t, d.SwitchWindow(ctx, handles[1]))
	url, _ := d.CurrentURL(ctx)
	assert.Equal(t, "https://docs.test/", url)

	require.NoError(t, d.Close(ctx))
	_, err = d.CurrentURL(ctx)
	assert.ErrorIs(t, err, driver.ErrNoSuchWindow)
	assert.Equal(t, 1, d.WindowCount())
}

func TestElementState(t *testing.T) {
	ctx := context.Background()
	d := New().AddPage("https://app.test/", home)
	require.NoError(t, d.Get(ctx, "https://app.test/"))

	for _, id := range []string{"hidden", "nested"} {
		el, err := d.FindElement(ctx, driver.ID(id))
		require.NoError(t, err)
		shown, err := el.IsDisplayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown, id)
	}

	sel, err := d.FindElement(ctx, driver.CSS("#country"))
	require.NoError(t, err)
	require.NoError(t, sel.SelectByIndex(ctx, 1))
	assert.Equal(t, 1, d.Selected["country"])
	assert.Error(t, sel.SelectByIndex(ctx, 5))

	_, err = d.FindElement(ctx, driver.CSS(".missing"))
	assert.ErrorIs(t, err, driver.ErrNoSuchElement)

	_, err = d.FindElements(ctx, driver.XPath("//a"))
	assert.ErrorIs(t, err, driver.ErrUnsupportedLocator)
}

func TestScriptedURLs(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.ScriptURLs("https://a.test/", "https://a.test/login", "https://a.test/home")

	var got []string
	for i := 0; i < 4; i++ {
		u, err := d.CurrentURL(ctx)
		require.NoError(t, err)
		got = append(got, u)
	}
	assert.Equal(t, []string{"https://a.test/", "https://a.test/login", "https://a.test/home", "https://a.test/home"}, got)
}
