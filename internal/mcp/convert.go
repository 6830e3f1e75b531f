package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenforge/agentrt/pkg/models"
)

// filterTools applies allow/block glob lists and max_tools truncation,
// in that order: block takes precedence over allow, and the count cap
// is applied after filtering (spec.md §4.7).
func filterTools(tools []*Tool, cfg *ServerConfig) []*Tool {
	filtered := make([]*Tool, 0, len(tools))
	for _, t := range tools {
		if matchesAny(cfg.BlockTools, t.Name) {
			continue
		}
		if len(cfg.AllowTools) > 0 && !matchesAny(cfg.AllowTools, t.Name) {
			continue
		}
		filtered = append(filtered, t)
	}
	if cfg.MaxTools > 0 && len(filtered) > cfg.MaxTools {
		filtered = filtered[:cfg.MaxTools]
	}
	return filtered
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchGlob(p, name) {
			return true
		}
	}
	return false
}

// toToolDefinition converts one MCP tool into a ToolDefinition the
// agent's registry can export to an LLM and dispatch, using call to
// actually invoke the server when the tool is executed.
func toToolDefinition(serverID string, tool *Tool, call func(ctx context.Context, args json.RawMessage) (string, error)) (models.ToolDefinition, tools_handler) {
	def := models.ToolDefinition{
		Name:        sdkToolName(serverID, tool.Name),
		Description: fmt.Sprintf("[MCP:%s] %s", serverID, tool.Description),
		RawSchema:   tool.InputSchema,
	}
	handler := func(ctx context.Context, tc *models.ToolContext, args json.RawMessage) (string, error) {
		return call(ctx, args)
	}
	return def, handler
}

// tools_handler has the same signature as internal/tools.Handler; the
// manager passes it to (*tools.Registry).RegisterRaw.
type tools_handler = func(ctx context.Context, tc *models.ToolContext, args json.RawMessage) (string, error)
