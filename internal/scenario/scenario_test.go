package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginYAML = `
name: login
start: ${BASE_URL}/login
steps:
  - action: fill
    locator: id=email
    value: qa+${RANDOM}@example.com
  - action: click
    locator: css=a.submit
    pick: first
  - action: expect_url
    expect: /dashboard
    timeout: 2s
    interval: 50ms
  - action: expect_count
    locator: css=.card
    count: 3
`

func TestParse(t *testing.T) {
	t.Run("should decode steps and durations", func(t *testing.T) {
		sc, err := Parse([]byte(loginYAML))
		require.NoError(t, err)
		assert.Equal(t, "login", sc.Name)
		assert.Equal(t, "${BASE_URL}/login", sc.Start)
		require.Len(t, sc.Steps, 4)
		assert.Equal(t, ActionFill, sc.Steps[0].Action)
		assert.Equal(t, "first", sc.Steps[1].Pick)
		assert.Equal(t, 2*time.Second, sc.Steps[2].Timeout)
		assert.Equal(t, 50*time.Millisecond, sc.Steps[2].Interval)
		require.NotNil(t, sc.Steps[3].Count)
		assert.Equal(t, 3, *sc.Steps[3].Count)
	})

	t.Run("should reject unknown keys", func(t *testing.T) {
		_, err := Parse([]byte("name: x\nstart: https://a.test\nsteps:\n  - action: back\n    locatr: id=x\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse yaml")
	})

	t.Run("should report every invalid step together", func(t *testing.T) {
		doc := `
start: https://app.test
steps:
  - action: teleport
  - action: click
  - action: click
    locator: jquery=.x
  - action: expect_count
    locator: css=.card
  - action: click
    locator: css=.card
    pick: last
  - action: select
    locator: id=lang
`
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, `step 1 (teleport): unknown action "teleport"`)
		assert.Contains(t, msg, "step 2 (click): locator is required")
		assert.Contains(t, msg, "step 3 (click)")
		assert.Contains(t, msg, "step 4 (expect_count): count is required")
		assert.Contains(t, msg, "pick can only accept following values first, random")
		assert.Contains(t, msg, "step 6 (select): index is required")
	})

	t.Run("should require a start and steps", func(t *testing.T) {
		_, err := Parse([]byte("name: empty\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start is required")
		assert.Contains(t, err.Error(), "at least one step is required")
	})

	t.Run("should reject index combined with pick", func(t *testing.T) {
		_, err := Parse([]byte("start: https://a.test\nsteps:\n  - action: click\n    locator: css=a\n    index: 1\n    pick: random\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mutually exclusive")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "checkout_flow.yaml")
	require.NoError(t, os.WriteFile(good, []byte("start: https://a.test\nsteps:\n  - action: refresh\n"), 0o644))
	bad := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("start: https://a.test\nsteps:\n  - action: fly\n"), 0o644))

	sc, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "checkout_flow", sc.Name, "name defaults to the file name")
	assert.Equal(t, good, sc.Path)

	all, err := LoadAll([]string{good, bad, filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, err.Error(), "broken.yaml")
	assert.Contains(t, err.Error(), "read scenario")
}
