package mcp

import (
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplocal "github.com/felixgeelhaar/slotwise/adapter/mcp"
)

func TestMiddlewareStack(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	open := middlewareStack("", logger)
	require.NotEmpty(t, open)
	assert.Len(t, middlewareStack(" , ", logger), len(open))
	assert.Len(t, middlewareStack("token-a", logger), len(open)+1)
	assert.Len(t, middlewareStack("token-a, token-b", logger), len(open)+1)
}

func TestNewServer_RegistersTools(t *testing.T) {
	srv := NewServer("")
	require.NoError(t, mcplocal.RegisterTools(srv, mcplocal.ToolDependencies{}))
	require.NoError(t, mcplocal.RegisterPrompts(srv))

	client := testutil.NewTestClient(t, srv)
	defer client.Close()
	tools, err := client.ListTools()
	require.NoError(t, err)
	assert.NotEmpty(t, tools)
}
