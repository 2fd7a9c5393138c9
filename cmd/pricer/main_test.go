package main

import (
	"bytes"
	"testing"

	"github.com/raine/resale-pricer/internal/llm"
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the user's real config out of the test.
func isolate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Chdir(home)
	for _, k := range []string{"AI_PROVIDER", "ANTHROPIC_API_KEY", "EBAY_CLIENT_ID", "EBAY_CLIENT_SECRET", "TOKEN_KEY", "LOG_LEVEL", "AI_MAX_TOKENS"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestEstimate_RequiresImage(t *testing.T) {
	isolate(t)
	_, err := run(t, "estimate", "--title", "lamp")
	assert.ErrorContains(t, err, `"image" not set`)
}

func TestEstimate_InvalidImageURL(t *testing.T) {
	isolate(t)
	out, err := run(t, "estimate", "--image", "lamp.jpg")
	assert.ErrorIs(t, err, pipeline.ErrInvalidRequest)
	assert.Empty(t, out)
}

func TestEstimate_MissingCredentials(t *testing.T) {
	isolate(t)
	_, err := run(t, "estimate", "--image", "https://img.example.com/1.jpg")
	var cfgErr *pipeline.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestComps_RequiresQuery(t *testing.T) {
	isolate(t)
	_, err := run(t, "comps")
	assert.Error(t, err)
}

func TestDescribe_UnknownProvider(t *testing.T) {
	isolate(t)
	_, err := run(t, "describe", "--image", "https://img.example.com/1.jpg", "--provider", "mystery")
	assert.ErrorIs(t, err, llm.ErrUnknownProvider)
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	require.NoError(t, c.printJSON(map[string]any{"confidence": "low", "suggested_price": nil}))
	assert.JSONEq(t, `{"confidence":"low","suggested_price":null}`, out.String())
}
