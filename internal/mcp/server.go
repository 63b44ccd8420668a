package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	mcplocal "github.com/felixgeelhaar/slotwise/adapter/mcp"
	"github.com/felixgeelhaar/slotwise/pkg/config"
)

// Serve starts an MCP server exposing the slot and booking tools and blocks
// until the context is canceled.
func Serve(ctx context.Context, cfg *config.Config, deps mcplocal.ToolDependencies, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := NewServer(cfg.Version)
	if err := mcplocal.RegisterTools(srv, deps); err != nil {
		return err
	}
	if err := mcplocal.RegisterPrompts(srv); err != nil {
		logger.Warn("failed to register MCP prompts", "error", err)
	}

	stack := middlewareStack(cfg.MCPAuthToken, logger)
	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "middleware", len(stack))
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

// middlewareStack builds the request pipeline. tokens is a comma-separated
// list of accepted bearer tokens, so a new token can be rolled out before
// the old one is revoked. Without tokens requests are unauthenticated.
func middlewareStack(tokens string, logger *slog.Logger) []middleware.Middleware {
	adapter := mcpLogger{logger: logger}
	stack := middleware.DefaultStack(adapter)

	identities := make(map[string]*middleware.Identity)
	for i, token := range strings.Split(tokens, ",") {
		if token = strings.TrimSpace(token); token != "" {
			name := fmt.Sprintf("mcp-client-%d", i+1)
			identities[token] = &middleware.Identity{ID: name, Name: name}
		}
	}
	if len(identities) == 0 {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
		return stack
	}

	authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(identities))
	return append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(adapter))}, stack...)
}

// NewServer creates the MCP server with tools and prompts enabled.
func NewServer(version string) *mcpgo.Server {
	if version == "" {
		version = "dev"
	}
	return mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    "slotwise-mcp",
		Version: version,
		Capabilities: mcpgo.Capabilities{
			Tools:   true,
			Prompts: true,
		},
	})
}

type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		args = append(args, field.Key, field.Value)
	}
	return args
}
