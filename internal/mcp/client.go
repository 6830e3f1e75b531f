package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const clientName = "agentrt"
const clientVersion = "0.1.0"

// DefaultMaxRetries is the default number of retry attempts for a
// retryable transport error on tools/call.
const DefaultMaxRetries = 3

// Client speaks MCP JSON-RPC 2.0 over one Transport, discovers tools,
// and converts them into ToolDefinitions an Agent Loop can call
// (spec.md §4.7).
type Client struct {
	config    *ServerConfig
	transport Transport
	log       *slog.Logger

	nextID atomic.Int64

	// SamplingHandler answers server-initiated sampling requests when
	// the embedding application wires it through HandleSampling; nil
	// means sampling is unsupported (spec supplement, not core §4.7).
	SamplingHandler SamplingHandler
}

// NewClient creates a Client for cfg using transport.
func NewClient(cfg *ServerConfig, transport Transport) *Client {
	c := &Client{
		config:    cfg,
		transport: transport,
		log:       slog.Default().With("component", "mcp.client", "server", cfg.ID),
	}
	transport.SetRequestHandler(c.dispatchServerRequest)
	return c
}

// Connect opens the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect mcp server %s: %w", c.config.ID, err)
	}
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo{Name: clientName, Version: clientVersion},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize mcp server %s: %w", c.config.ID, err)
	}
	return nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Connected reports whether the underlying transport is connected.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// ListTools calls tools/list and returns the advertised tools.
// Accepts both {tools:[...]} and a bare [...] response shape.
// Duplicate tool names within one server are rejected.
func (c *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	result, err := c.call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("tools/list on %s: %w", c.config.ID, err)
	}

	var tools []*Tool
	var wrapped listToolsResult
	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.Tools != nil {
		tools = wrapped.Tools
	} else if err := json.Unmarshal(result, &tools); err != nil {
		return nil, fmt.Errorf("parse tools/list result from %s: %w", c.config.ID, err)
	}

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name] {
			return nil, fmt.Errorf("mcp server %s: duplicate tool name %q", c.config.ID, t.Name)
		}
		seen[t.Name] = true
	}
	return tools, nil
}

// CallTool invokes tools/call with retry/backoff on retryable
// transport errors. The result's text content is joined with "\n";
// an isError result is prefixed "Error: ".
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := c.callTool(ctx, name, arguments)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var te *TransportError
		if !isRetryable(err, &te) || attempt == maxRetries {
			return "", err
		}

		backoff := time.Duration(0.1*math.Pow(2, float64(attempt-1)) * float64(time.Second))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func isRetryable(err error, target **TransportError) bool {
	if !errors.As(err, target) {
		return false
	}
	return (*target).Retryable
}

func (c *Client) callTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	result, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("tools/call %s on %s: %w", name, c.config.ID, err)
	}

	var parsed CallToolResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return "", fmt.Errorf("parse tools/call result from %s: %w", c.config.ID, err)
	}

	texts := make([]string, 0, len(parsed.Content))
	for _, block := range parsed.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.Join(texts, "\n")
	if parsed.IsError {
		text = "Error: " + text
	}
	return text, nil
}

// HandleSampling answers a server-initiated sampling request using
// SamplingHandler. Returns an error if none is configured.
func (c *Client) HandleSampling(req SamplingRequest) (SamplingResponse, error) {
	if c.SamplingHandler == nil {
		return SamplingResponse{}, fmt.Errorf("mcp server %s: no sampling handler configured", c.config.ID)
	}
	return c.SamplingHandler(req)
}

// dispatchServerRequest routes an unsolicited server-to-client JSON-RPC
// request, read by a transport's own read loop, to the matching
// handler and marshals its reply back into a JSON-RPC result.
func (c *Client) dispatchServerRequest(method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "sampling/createMessage":
		var req SamplingRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("parse sampling request: %w", err)
		}
		resp, err := c.HandleSampling(req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	default:
		return nil, fmt.Errorf("mcp server %s: unsupported server-initiated method %q", c.config.ID, method)
	}
}

// call performs one JSON-RPC request/response roundtrip.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.transport.Call(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// sdkToolName builds the SDK-facing name for an MCP-imported tool
// (spec.md §4.7/§6): "mcp.{server}.{tool}".
func sdkToolName(server, tool string) string {
	return "mcp." + server + "." + tool
}

// matchGlob reports whether name matches a shell-style glob pattern,
// used for per-server tool allow/block lists.
func matchGlob(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
