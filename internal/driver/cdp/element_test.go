package cdp

import (
	"math"
	"testing"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeCall(t *testing.T) {
	params, err := nodeCall("obj-7", `function(n){ return this[n]; }`, []any{"value", 2})
	require.NoError(t, err)

	assert.Equal(t, cdpruntime.RemoteObjectID("obj-7"), params.ObjectID)
	assert.Equal(t, `function(n){ return this[n]; }`, params.FunctionDeclaration)
	assert.True(t, params.ReturnByValue, "results must come back as JSON values")
	require.Len(t, params.Arguments, 2)
	assert.JSONEq(t, `"value"`, string(params.Arguments[0].Value))
	assert.JSONEq(t, `2`, string(params.Arguments[1].Value))

	t.Run("no arguments", func(t *testing.T) {
		params, err := nodeCall("obj-1", `function(){ return 1; }`, nil)
		require.NoError(t, err)
		assert.Empty(t, params.Arguments)
	})

	t.Run("unencodable argument", func(t *testing.T) {
		_, err := nodeCall("obj-1", `function(x){}`, []any{math.Inf(1)})
		assert.ErrorContains(t, err, "encode script argument")
	})
}
