package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumenforge/agentrt/internal/tools"
)

// serverState pairs a connected Client with the SDK tool names it
// currently has injected into a Registry, so remove_tools/refresh_tools
// can undo exactly what inject_tools added.
type serverState struct {
	client       *Client
	config       *ServerConfig
	injectedToolNames []string
}

// Manager owns a set of MCP servers and mirrors their tools into a
// tools.Registry under the "mcp.{server}.{tool}" naming convention
// (spec.md §4.7). Injection is idempotent: calling InjectTools twice
// for the same server replaces rather than duplicates.
type Manager struct {
	log *slog.Logger

	mu      sync.RWMutex
	servers map[string]*serverState
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:     logger.With("component", "mcp.manager"),
		servers: make(map[string]*serverState),
	}
}

// AddServer validates cfg, builds its Transport, connects, and keeps
// the client available for InjectTools. transport may be supplied
// directly (tests pass an InProcessTransport); nil builds one from cfg.
func (m *Manager) AddServer(ctx context.Context, cfg *ServerConfig, transport Transport) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("mcp server %s: %w", cfg.ID, err)
	}

	if transport == nil {
		t, err := NewTransport(cfg)
		if err != nil {
			return err
		}
		transport = t
	}

	client := NewClient(cfg, transport)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.servers[cfg.ID] = &serverState{client: client, config: cfg}
	m.mu.Unlock()

	m.log.Info("connected mcp server", "server", cfg.ID, "transport", cfg.Transport)
	return nil
}

// RemoveServer disconnects and forgets a server, after removing
// whatever tools it had injected from registry (if non-nil).
func (m *Manager) RemoveServer(registry *tools.Registry, serverID string) error {
	m.mu.Lock()
	state, ok := m.servers[serverID]
	if ok {
		delete(m.servers, serverID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if registry != nil {
		for _, name := range state.injectedToolNames {
			registry.Unregister(name)
		}
	}
	return state.client.Close()
}

// DisconnectAll closes every managed server's transport.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*serverState)
	m.mu.Unlock()

	for id, state := range servers {
		if err := state.client.Close(); err != nil {
			m.log.Error("close mcp server", "server", id, "error", err)
		}
	}
}

// InjectTools lists serverID's tools, applies its allow/block/max_tools
// filters, and registers each as a "mcp.{server}.{tool}" tool on
// registry. Re-running replaces the previous injection for that server.
func (m *Manager) InjectTools(ctx context.Context, registry *tools.Registry, serverID string) error {
	m.mu.RLock()
	state, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mcp server %s: not connected", serverID)
	}

	rawTools, err := state.client.ListTools(ctx)
	if err != nil {
		return err
	}
	filtered := filterTools(rawTools, state.config)

	for _, old := range state.injectedToolNames {
		registry.Unregister(old)
	}

	names := make([]string, 0, len(filtered))
	for _, t := range filtered {
		tool := t
		call := func(ctx context.Context, args json.RawMessage) (string, error) {
			return state.client.CallTool(ctx, tool.Name, args)
		}
		def, handler := toToolDefinition(serverID, tool, call)
		if err := registry.RegisterRaw(def, handler); err != nil {
			return fmt.Errorf("inject mcp tool %s: %w", def.Name, err)
		}
		names = append(names, def.Name)
	}

	m.mu.Lock()
	state.injectedToolNames = names
	m.mu.Unlock()

	m.log.Info("injected mcp tools", "server", serverID, "count", len(names))
	return nil
}

// InjectAll calls InjectTools for every connected server, collecting
// the first error but attempting the rest.
func (m *Manager) InjectAll(ctx context.Context, registry *tools.Registry) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := m.InjectTools(ctx, registry, id); err != nil {
			m.log.Error("inject mcp tools", "server", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RemoveTools unregisters exactly the tools InjectTools most recently
// added for serverID, without disconnecting the server.
func (m *Manager) RemoveTools(registry *tools.Registry, serverID string) {
	m.mu.Lock()
	state, ok := m.servers[serverID]
	var names []string
	if ok {
		names = state.injectedToolNames
		state.injectedToolNames = nil
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, name := range names {
		registry.Unregister(name)
	}
}

// RefreshTools re-injects tools for serverID (or every server if
// serverID is empty), picking up additions/removals on the MCP side.
func (m *Manager) RefreshTools(ctx context.Context, registry *tools.Registry, serverID string) error {
	if serverID != "" {
		return m.InjectTools(ctx, registry, serverID)
	}
	return m.InjectAll(ctx, registry)
}

// Client returns the connected client for serverID, if any.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.servers[serverID]
	if !ok {
		return nil, false
	}
	return state.client, true
}

// ServerIDs returns every currently managed server ID.
func (m *Manager) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	return ids
}
