package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"required,description=text to echo"`
}

func TestRegistry_DefinitionsIncludeGeneratedSchema(t *testing.T) {
	r := NewRegistry()
	AddTool(r, "echo", "echoes input", func(ctx context.Context, a echoArgs) (Result, error) {
		return Result{Success: true, Result: a.Text}, nil
	})

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Contains(t, string(defs[0].Schema), "text")
}

func TestRegistry_Execute_RoutesToMatchingTool(t *testing.T) {
	r := NewRegistry()
	AddTool(r, "echo", "echoes input", func(ctx context.Context, a echoArgs) (Result, error) {
		return Result{Success: true, Result: "got:" + a.Text}, nil
	})

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "got:hi", res.Result)
}

func TestRegistry_Execute_UnknownToolIsNotAnError(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Result, "unknown tool")
}

func TestRegistry_Execute_InvalidArgsIsAFailedResultNotAnError(t *testing.T) {
	r := NewRegistry()
	AddTool(r, "echo", "echoes input", func(ctx context.Context, a echoArgs) (Result, error) {
		return Result{Success: true, Result: a.Text}, nil
	})

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Result, "invalid arguments")
}
