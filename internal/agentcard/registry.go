// Package agentcard implements the agent directory: visibility-aware
// discovery and handoff-tool synthesis over a set of AgentCards
// (spec.md §4.9).
package agentcard

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumenforge/agentrt/pkg/models"
)

// Runtime pairs an AgentCard with the runnable behind it. The
// registry only needs the card for discovery/policy decisions; Run is
// invoked by the handoff engine once a target has been resolved.
type Runtime struct {
	Card models.AgentCard
	Run  RunFunc
}

// RunFunc drives one agent's Agent Loop for a handoff. ctx carries the
// target's deadline (spec.md §4.10 step 6).
type RunFunc func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error)

// Registry holds every known agent, keyed by agent id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Runtime
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Runtime)}
}

// Register adds or replaces an agent.
func (r *Registry) Register(rt *Runtime) error {
	if rt.Card.AgentID == "" {
		return fmt.Errorf("register agent: agent_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[rt.Card.AgentID] = rt
	return nil
}

// Unregister removes an agent by id. No-op if absent.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Get returns the Runtime for agentID without a visibility check,
// for use by trusted internal callers (e.g. the handoff engine after
// its own policy chain has already run).
func (r *Registry) Get(agentID string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.agents[agentID]
	return rt, ok
}

// Visible reports whether caller may discover target's card (spec.md §4.9).
func Visible(target models.AgentCard, caller models.Caller) bool {
	switch target.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityOrg:
		return target.OrgID != "" && target.OrgID == caller.OrgID
	case models.VisibilityPrivate:
		return target.OwnerID != "" && target.OwnerID == caller.OwnerID
	default:
		return false
	}
}

// FindBySkill returns every agent visible to caller whose skill set
// contains skill.
func (r *Registry) FindBySkill(skill string, caller models.Caller) []models.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AgentCard
	for _, rt := range r.agents {
		if !Visible(rt.Card, caller) {
			continue
		}
		if rt.Card.HasSkill(skill) {
			out = append(out, rt.Card)
		}
	}
	return out
}

// CanHandoff reports whether from may hand off to to, as seen by
// caller. It short-circuits on the target's deny policy and otherwise
// defers to visibility.
func (r *Registry) CanHandoff(from, to string, caller models.Caller) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target, ok := r.agents[to]
	if !ok {
		return false
	}
	if target.Card.HandoffPolicy == models.HandoffDeny {
		return false
	}
	return Visible(target.Card, caller)
}

// ToHandoffTools materializes a transfer_to_{agent_id} tool definition
// for every agent visible to caller, excluding caller itself and any
// agent whose handoff_policy is deny. Each tool takes one required
// "reason" string parameter.
func (r *Registry) ToHandoffTools(caller models.Caller) []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ToolDefinition
	for id, rt := range r.agents {
		if id == caller.AgentID {
			continue
		}
		if rt.Card.HandoffPolicy == models.HandoffDeny {
			continue
		}
		if !Visible(rt.Card, caller) {
			continue
		}
		out = append(out, models.ToolDefinition{
			Name:        "transfer_to_" + id,
			Description: fmt.Sprintf("Transfer the conversation to %s: %s", rt.Card.Name, rt.Card.Description),
			Parameters: []models.ToolParameter{
				{Name: "reason", Type: models.ParamString, Required: true, Description: "why this handoff is being made"},
			},
		})
	}
	return out
}
