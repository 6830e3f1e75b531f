// Package mcp implements a Model Context Protocol client: transports,
// the JSON-RPC envelope, tool discovery/conversion, and a manager
// that owns multiple servers (spec.md §4.7).
package mcp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TransportKind selects which wire transport a ServerConfig uses.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportHTTP      TransportKind = "http"
	TransportInProcess TransportKind = "in_process"
)

// ServerConfig describes one MCP server to connect to. It carries
// both json and yaml tags so the same document loads from a YAML
// bootstrap file or a JSON admin API body.
type ServerConfig struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Transport TransportKind `yaml:"transport" json:"transport"`

	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`

	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	AllowTools []string `yaml:"allow_tools,omitempty" json:"allow_tools,omitempty"`
	BlockTools []string `yaml:"block_tools,omitempty" json:"block_tools,omitempty"`
	MaxTools   int      `yaml:"max_tools,omitempty" json:"max_tools,omitempty"`
}

// Validate checks the config for missing fields and injection-prone
// values before a connection is attempted.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server id is required")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio config for %s: command is required", c.ID)
		}
		if err := validatePath(c.Command); err != nil {
			return fmt.Errorf("stdio config for %s: %w", c.ID, err)
		}
		if c.WorkDir != "" {
			if err := validatePath(c.WorkDir); err != nil {
				return fmt.Errorf("stdio config for %s: %w", c.ID, err)
			}
		}
		for i, arg := range c.Args {
			if containsShellMetachars(arg) {
				return fmt.Errorf("stdio config for %s: arg[%d] contains shell metacharacters: %q", c.ID, i, arg)
			}
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("http config for %s: url is required", c.ID)
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("http config for %s: url must start with http:// or https://", c.ID)
		}
	case TransportInProcess:
		// no external resource to validate
	default:
		return fmt.Errorf("server %s: unknown transport %q", c.ID, c.Transport)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("path contains traversal: %q", path)
	}
	return nil
}

func containsShellMetachars(s string) bool {
	for _, pattern := range []string{"$(", "${", "`", "&&", "||", ";", "|", ">", "<", "\n", "\r"} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// Tool is one tool advertised by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one item of a tools/call result's content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the result of a tools/call invocation.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// SamplingMessage is one message in a server-initiated sampling
// request (spec.md supplement: MCP sampling passthrough).
type SamplingMessage struct {
	Role    string `json:"role"`
	Content struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
}

// SamplingRequest is a server-initiated "sampling/createMessage" request.
type SamplingRequest struct {
	Messages     []SamplingMessage `json:"messages"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	MaxTokens    int               `json:"maxTokens,omitempty"`
}

// SamplingResponse is the client's reply to a SamplingRequest.
type SamplingResponse struct {
	Role    string `json:"role"`
	Content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model,omitempty"`
}

// SamplingHandler lets a client answer server-initiated sampling
// requests by delegating to a real model.
type SamplingHandler func(req SamplingRequest) (SamplingResponse, error)

// ClientInfo is sent as part of the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ProtocolVersion is the MCP wire protocol version this client speaks.
const ProtocolVersion = "2024-11-05"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification envelope (no id).
// Server-to-client requests such as sampling/createMessage carry an id
// and are decoded by StdioTransport.dispatchIfServerRequest instead.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp rpc error %d: %s", e.Code, e.Message)
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

type listToolsResult struct {
	Tools []*Tool `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
