package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// StdioTransport speaks MCP over a child process's stdin/stdout, one
// newline-delimited JSON frame per call (spec.md §4.7).
type StdioTransport struct {
	config *ServerConfig
	log    *slog.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	stderr  io.ReadCloser

	mu        sync.Mutex
	connected bool

	frames     chan string
	stopOnce   sync.Once
	stopped    chan struct{}
	wg         sync.WaitGroup
	reqHandler RequestHandler
}

// NewStdioTransport creates a StdioTransport for cfg.
func NewStdioTransport(cfg *ServerConfig) *StdioTransport {
	return &StdioTransport{
		config:  cfg,
		log:     slog.Default().With("component", "mcp.stdio", "server", cfg.ID),
		frames:  make(chan string, 256),
		stopped: make(chan struct{}),
	}
}

// Connect spawns the child process and starts the frame reader.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.process = exec.Command(t.config.Command, t.config.Args...)
	t.process.Env = os.Environ()
	for k, v := range t.config.Env {
		t.process.Env = append(t.process.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if t.config.WorkDir != "" {
		t.process.Dir = t.config.WorkDir
	}

	var err error
	t.stdin, err = t.process.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := t.process.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	t.stdout = bufio.NewScanner(stdout)
	t.stdout.Buffer(make([]byte, 64*1024), 1<<20)
	t.stderr, _ = t.process.StderrPipe()

	if err := t.process.Start(); err != nil {
		return fmt.Errorf("start mcp server process: %w", err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	t.log.Info("started mcp server process", "command", t.config.Command, "pid", t.process.Process.Pid)

	t.wg.Add(1)
	go t.readLoop()
	if t.stderr != nil {
		t.wg.Add(1)
		go t.logStderr()
	}
	return nil
}

// Call writes payload+"\n" to stdin and reads exactly one frame back.
func (t *StdioTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	if !t.Connected() {
		return nil, fmt.Errorf("mcp stdio transport %s: not connected", t.config.ID)
	}

	if _, err := t.stdin.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	select {
	case frame := <-t.frames:
		return []byte(frame), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("mcp stdio transport %s: request timeout after %s", t.config.ID, timeout)
	case <-t.stopped:
		return nil, fmt.Errorf("mcp stdio transport %s: closed", t.config.ID)
	}
}

// SetRequestHandler registers handler for unsolicited server-to-client
// requests (e.g. sampling/createMessage) read off stdout.
func (t *StdioTransport) SetRequestHandler(handler RequestHandler) {
	t.mu.Lock()
	t.reqHandler = handler
	t.mu.Unlock()
}

// Connected reports whether the child process is still running.
func (t *StdioTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close stops the child process, waiting up to 5s before killing it.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	t.stopOnce.Do(func() { close(t.stopped) })
	if t.stdin != nil {
		t.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		if t.process != nil {
			t.process.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if t.process != nil && t.process.Process != nil {
			t.process.Process.Kill()
		}
	}

	t.wg.Wait()
	return nil
}

func (t *StdioTransport) readLoop() {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for t.stdout.Scan() {
		line := t.stdout.Text()
		if line == "" {
			continue
		}
		if t.dispatchIfServerRequest(line) {
			continue
		}
		select {
		case t.frames <- line:
		case <-t.stopped:
			return
		}
	}
}

// dispatchIfServerRequest answers an unsolicited server-to-client
// JSON-RPC request (one carrying "method") inline, writing the reply
// back over stdin, and reports whether line was such a request rather
// than a response destined for a blocked Call.
func (t *StdioTransport) dispatchIfServerRequest(line string) bool {
	var env struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(line), &env); err != nil || env.Method == "" {
		return false
	}

	t.mu.Lock()
	handler := t.reqHandler
	t.mu.Unlock()

	resp := Response{JSONRPC: "2.0"}
	if env.ID != nil {
		resp.ID = *env.ID
	}
	switch {
	case handler == nil:
		resp.Error = &RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", env.Method)}
	default:
		result, err := handler(env.Method, env.Params)
		if err != nil {
			resp.Error = &RPCError{Code: -32000, Message: err.Error()}
		} else {
			resp.Result = result
		}
	}

	if env.ID != nil {
		if payload, err := json.Marshal(resp); err == nil {
			t.stdin.Write(append(payload, '\n'))
		}
	}
	return true
}

func (t *StdioTransport) logStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		select {
		case <-t.stopped:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			t.log.Debug("server stderr", "message", line)
		}
	}
}
