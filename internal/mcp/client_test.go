package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func newTestServer(t *testing.T, handler func(method string, params json.RawMessage) (json.RawMessage, error)) *Client {
	t.Helper()
	transport := NewInProcessTransport(func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		result, err := handler(req.Method, req.Params)
		if err != nil {
			return json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32000, Message: err.Error()}})
		}
		return json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: result})
	})
	cfg := &ServerConfig{ID: "test", Transport: TransportInProcess}
	client := NewClient(cfg, transport)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func TestConnectPerformsInitializeHandshake(t *testing.T) {
	var sawInit bool
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "initialize" {
			sawInit = true
		}
		return json.RawMessage(`{}`), nil
	})
	_ = client
	if !sawInit {
		t.Fatal("expected initialize to be called during Connect")
	}
}

func TestListToolsAcceptsWrappedShape(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "tools/list" {
			return json.Marshal(listToolsResult{Tools: []*Tool{{Name: "search"}}})
		}
		return json.RawMessage(`{}`), nil
	})
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestListToolsAcceptsBareArrayShape(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "tools/list" {
			return json.Marshal([]*Tool{{Name: "fetch"}})
		}
		return json.RawMessage(`{}`), nil
	})
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "fetch" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestListToolsRejectsDuplicateNames(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "tools/list" {
			return json.Marshal([]*Tool{{Name: "dup"}, {Name: "dup"}})
		}
		return json.RawMessage(`{}`), nil
	})
	if _, err := client.ListTools(context.Background()); err == nil {
		t.Fatal("expected duplicate tool name error")
	}
}

func TestCallToolJoinsTextBlocksWithNewline(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case "tools/call":
			return json.Marshal(CallToolResult{Content: []ContentBlock{
				{Type: "text", Text: "line one"},
				{Type: "text", Text: "line two"},
			}})
		}
		return json.RawMessage(`{}`), nil
	})
	out, err := client.CallTool(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "line one\nline two" {
		t.Fatalf("unexpected join: %q", out)
	}
}

func TestCallToolPrefixesIsErrorResult(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(CallToolResult{IsError: true, Content: []ContentBlock{{Type: "text", Text: "boom"}}})
	})
	out, err := client.CallTool(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "Error: boom" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCallToolRetriesRetryableTransportError(t *testing.T) {
	attempts := 0
	transport := NewInProcessTransport(func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Request
		json.Unmarshal(payload, &req)
		if req.Method == "initialize" {
			return json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
		}
		attempts++
		if attempts < 3 {
			return nil, &TransportError{StatusCode: 503, Retryable: true}
		}
		return json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: mustMarshal(CallToolResult{Content: []ContentBlock{{Type: "text", Text: "ok"}}})})
	})
	cfg := &ServerConfig{ID: "retry", Transport: TransportInProcess, MaxRetries: 5}
	client := NewClient(cfg, transport)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	out, err := client.CallTool(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "ok" || attempts != 3 {
		t.Fatalf("unexpected retry outcome: out=%q attempts=%d", out, attempts)
	}
}

func TestCallToolDoesNotRetryNonRetryableError(t *testing.T) {
	attempts := 0
	transport := NewInProcessTransport(func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Request
		json.Unmarshal(payload, &req)
		if req.Method == "initialize" {
			return json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
		}
		attempts++
		return nil, &TransportError{StatusCode: 400, Retryable: false}
	})
	cfg := &ServerConfig{ID: "noretry", Transport: TransportInProcess}
	client := NewClient(cfg, transport)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := client.CallTool(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}
}

func TestRPCErrorPropagatesFromCall(t *testing.T) {
	client := newTestServer(t, func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "tools/list" {
			return nil, fmt.Errorf("unknown method")
		}
		return json.RawMessage(`{}`), nil
	})
	if _, err := client.ListTools(context.Background()); err == nil {
		t.Fatal("expected rpc error to propagate")
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
