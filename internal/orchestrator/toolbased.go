// Package orchestrator implements the two multi-agent dispatch modes:
// tool-based (synthesized transfer_to_* tools driven by the entry
// agent's own loop) and coordinator (a dedicated routing LLM)
// (spec.md §4.11).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumenforge/agentrt/internal/agentcard"
	"github.com/lumenforge/agentrt/internal/handoff"
	"github.com/lumenforge/agentrt/internal/tools"
	"github.com/lumenforge/agentrt/pkg/models"
)

const transferToolPrefix = "transfer_to_"

// Context supplies the live values a transfer tool needs at call
// time: the driving loop's current user_input (used as the handoff
// reason when the LLM didn't supply one) and its memory summary.
type Context struct {
	UserInput     func() string
	MemorySummary func() string
}

// RegisterHandoffTools materializes caller's visible transfer_to_*
// tools from registry and registers each on dest, wired to engine.
// Calling it again replaces the previous set for the same caller.
func RegisterHandoffTools(dest *tools.Registry, registry *agentcard.Registry, engine *handoff.Engine, caller models.Caller, live Context) error {
	for _, def := range registry.ToHandoffTools(caller) {
		targetID := strings.TrimPrefix(def.Name, transferToolPrefix)
		handler := newTransferHandler(engine, caller, targetID, live)
		if err := dest.RegisterRaw(def, handler); err != nil {
			return fmt.Errorf("register handoff tool %s: %w", def.Name, err)
		}
	}
	return nil
}

type transferArgs struct {
	Reason string `json:"reason"`
}

// newTransferHandler builds the handler for one transfer_to_{target}
// tool: it assembles a HandoffRequest from the live call and returns
// the target's output (or the handoff error message) as tool text.
func newTransferHandler(engine *handoff.Engine, caller models.Caller, targetID string, live Context) tools.Handler {
	return func(ctx context.Context, tc *models.ToolContext, args json.RawMessage) (string, error) {
		var a transferArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &a); err != nil {
				return "", fmt.Errorf("parse transfer arguments: %w", err)
			}
		}
		if a.Reason == "" && live.UserInput != nil {
			a.Reason = live.UserInput()
		}
		summary := ""
		if live.MemorySummary != nil {
			summary = live.MemorySummary()
		}

		req := &models.HandoffRequest{
			FromAgent:     caller.AgentID,
			ToAgent:       targetID,
			Reason:        a.Reason,
			RequestedMode: models.HandoffModeToolBased,
			CallerOwnerID: caller.OwnerID,
			CallerOrgID:   caller.OrgID,
			Context: &models.HandoffContext{
				Messages:      []models.HandoffMessage{{Role: models.RoleUser, Content: a.Reason}},
				MemorySummary: summary,
			},
		}
		if tc != nil {
			req.TraceID = tc.TraceID
		}

		result, err := engine.Handoff(ctx, req)
		if err != nil {
			return "", err
		}
		if result.Status != models.HandoffStatusSuccess {
			msg := "handoff failed"
			if result.Error != nil {
				msg = result.Error.Message
			}
			return fmt.Sprintf("error: %s", msg), nil
		}
		return result.Output, nil
	}
}
