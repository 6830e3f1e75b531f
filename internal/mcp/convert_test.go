package mcp

import (
	"context"
	"encoding/json"
	"testing"
)

func TestToToolDefinitionNamesAndPrefixesDescription(t *testing.T) {
	tool := &Tool{Name: "search", Description: "runs a search", InputSchema: json.RawMessage(`{"type":"object"}`)}
	def, _ := toToolDefinition("web", tool, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", nil
	})
	if def.Name != "mcp.web.search" {
		t.Fatalf("unexpected name: %s", def.Name)
	}
	if def.Description != "[MCP:web] runs a search" {
		t.Fatalf("unexpected description: %s", def.Description)
	}
	if string(def.RawSchema) != `{"type":"object"}` {
		t.Fatalf("expected raw schema to be preserved verbatim, got %s", def.RawSchema)
	}
}

func TestFilterToolsAllowListExcludesUnlisted(t *testing.T) {
	cfg := &ServerConfig{AllowTools: []string{"query"}}
	tools := []*Tool{{Name: "query"}, {Name: "delete"}}
	filtered := filterTools(tools, cfg)
	if len(filtered) != 1 || filtered[0].Name != "query" {
		t.Fatalf("unexpected filtered set: %+v", filtered)
	}
}

func TestFilterToolsBlockTakesPrecedenceOverAllow(t *testing.T) {
	cfg := &ServerConfig{AllowTools: []string{"*"}, BlockTools: []string{"delete"}}
	tools := []*Tool{{Name: "query"}, {Name: "delete"}}
	filtered := filterTools(tools, cfg)
	if len(filtered) != 1 || filtered[0].Name != "query" {
		t.Fatalf("unexpected filtered set: %+v", filtered)
	}
}
