// Package handoff implements the cross-agent delegation pipeline:
// idempotency, access policy, loop detection, context filtering,
// deadline-bounded execution, and result caching (spec.md §4.10).
package handoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenforge/agentrt/internal/agentcard"
	"github.com/lumenforge/agentrt/internal/trace"
	"github.com/lumenforge/agentrt/pkg/models"
)

// DefaultIdempotencyTTL and DefaultDeadlineMS match spec.md §4.10's
// stated defaults (86400s cache TTL, 30000ms execution deadline).
const (
	DefaultIdempotencyTTL = 86400 * time.Second
	DefaultDeadlineMS     = 30000
	DefaultMaxHopCount    = 8
)

// ContextFilter inspects/redacts a HandoffContext in place, appending
// to RedactionReport when it removes or masks content.
type ContextFilter func(hc *models.HandoffContext)

// Config configures one Engine.
type Config struct {
	Registry *agentcard.Registry
	Tracer   *trace.Tracer

	// PlatformFilter runs first on every handoff and cannot be
	// bypassed by the caller (spec.md §4.10 step 5).
	PlatformFilter ContextFilter

	IdempotencyTTL     time.Duration
	MaxHopCount        int
	CrossOwnerDisabled bool

	// SigningKey, when set, makes every request carry a signed identity
	// token (req.Metadata["token"]) so a target agent running in a
	// different process can verify the caller without a shared database.
	SigningKey []byte
}

type cacheEntry struct {
	result    models.HandoffResult
	storedAt  time.Time
}

// inflightCall tracks one in-progress Handoff for a given request_id so
// concurrent callers sharing that id dedupe onto a single target.Run
// invocation (spec.md §4.10 step 1: "target executes exactly once").
type inflightCall struct {
	done   chan struct{}
	result models.HandoffResult
}

// Engine runs the Handoff Engine pipeline.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	cache    map[string]cacheEntry
	inflight map[string]*inflightCall
}

// New creates an Engine. A nil cfg.PlatformFilter is treated as a
// no-op filter.
func New(cfg Config) *Engine {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if cfg.MaxHopCount <= 0 {
		cfg.MaxHopCount = DefaultMaxHopCount
	}
	if cfg.PlatformFilter == nil {
		cfg.PlatformFilter = func(*models.HandoffContext) {}
	}
	return &Engine{cfg: cfg, cache: make(map[string]cacheEntry), inflight: make(map[string]*inflightCall)}
}

// Handoff runs the full twelve-step pipeline for req.
func (e *Engine) Handoff(ctx context.Context, req *models.HandoffRequest) (result *models.HandoffResult, err error) {
	e.pruneExpired()

	// Step 1: idempotency lookup, deduped against any in-flight call
	// already running for this request_id.
	if req.RequestID != "" {
		cached, hit, call, leader := e.lookupOrClaim(req.RequestID)
		if hit {
			cached.CacheHit = true
			return &cached, nil
		}
		if !leader {
			<-call.done
			followerResult := call.result
			followerResult.CacheHit = true
			return &followerResult, nil
		}
		defer func() {
			if result != nil {
				call.result = *result
			}
			e.mu.Lock()
			delete(e.inflight, req.RequestID)
			e.mu.Unlock()
			close(call.done)
		}()
	}

	if len(e.cfg.SigningKey) > 0 {
		token, err := signIdentityToken(e.cfg.SigningKey, req.FromAgent, req.CallerOwnerID, req.CallerOrgID)
		if err == nil {
			if req.Metadata == nil {
				req.Metadata = make(map[string]any)
			}
			req.Metadata["token"] = token
		}
	}

	start := time.Now()

	// Step 2: resolve target.
	target, ok := e.cfg.Registry.Get(req.ToAgent)
	if !ok {
		return e.fail(req, models.ErrNotFound, fmt.Sprintf("agent %q not found", req.ToAgent), start)
	}

	// Step 3: access policy chain (a)-(g).
	if err := e.checkAccess(req, target.Card); err != nil {
		he := err.(*models.HandoffError)
		return e.fail(req, he.Code, he.Message, start)
	}

	// Step 4: loop policy.
	if req.HopCount+1 > e.cfg.MaxHopCount {
		return e.fail(req, models.ErrLoopDetected, "max_hop_count exceeded", start)
	}
	if req.Visited(req.ToAgent) {
		return e.fail(req, models.ErrLoopDetected, fmt.Sprintf("agent %q already visited", req.ToAgent), start)
	}

	// Step 5: context filters, fixed order.
	hc := req.Context
	if hc == nil {
		hc = &models.HandoffContext{}
	}
	e.cfg.PlatformFilter(hc)
	applyTargetFilter(hc, target.Card)
	applyTokenBudget(hc)
	appendAuditHistory(hc, req.FromAgent, req.ToAgent)

	// Step 6/7: deadline-bounded execution.
	deadlineMS := req.DeadlineMS
	if deadlineMS <= 0 {
		deadlineMS = DefaultDeadlineMS
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(deadlineMS)*time.Millisecond)
	defer cancel()

	var span *trace.Started
	if e.cfg.Tracer != nil {
		span = e.cfg.Tracer.Span(fmt.Sprintf("handoff:%s->%s", req.FromAgent, req.ToAgent), models.SpanKindCustom, map[string]any{
			"from_agent": req.FromAgent,
			"to_agent":   req.ToAgent,
			"hop_count":  req.HopCount,
		})
	}

	userInput, history := lastUserMessageAndHistory(hc.Messages)
	agentResult, err := target.Run(runCtx, userInput, history, hc.MemorySummary)

	duration := time.Since(start)

	if err != nil {
		status := models.HandoffStatusError
		code := models.ErrToolError
		if runCtx.Err() == context.DeadlineExceeded {
			status = models.HandoffStatusTimeout
			code = models.ErrTimeout
		}
		if span != nil {
			span.SetAttribute("status", string(status))
			span.End(err)
		}
		result := models.HandoffResult{
			AgentID: req.ToAgent, Status: status, Error: models.NewHandoffError(code, err.Error()),
			DurationMS: duration.Milliseconds(), RequestID: req.RequestID,
		}
		if req.RequestID != "" && status != models.HandoffStatusTimeout {
			e.storeCache(req.RequestID, result)
		}
		return &result, nil
	}

	// Step 8: result assembly.
	success := models.HandoffResult{
		Output:     agentResult.FinalOutput,
		AgentID:    req.ToAgent,
		Status:     models.HandoffStatusSuccess,
		DurationMS: duration.Milliseconds(),
		RequestID:  req.RequestID,
	}

	if span != nil {
		span.SetAttribute("status", string(success.Status))
		span.End(nil)
	}

	// Step 10: cache on success.
	if req.RequestID != "" {
		e.storeCache(req.RequestID, success)
	}

	return &success, nil
}

func (e *Engine) fail(req *models.HandoffRequest, code models.HandoffErrorCode, message string, start time.Time) (*models.HandoffResult, error) {
	status := models.HandoffStatusError
	switch code {
	case models.ErrNotFound, models.ErrNotAllowed, models.ErrSafetyBlock:
		status = models.HandoffStatusDenied
	case models.ErrLoopDetected:
		status = models.HandoffStatusLoopDetected
	}
	return &models.HandoffResult{
		AgentID:    req.ToAgent,
		Status:     status,
		Error:      models.NewHandoffError(code, message),
		DurationMS: time.Since(start).Milliseconds(),
		RequestID:  req.RequestID,
	}, nil
}

// checkAccess runs policy chain (a)-(g) from spec.md §4.10 step 3.
func (e *Engine) checkAccess(req *models.HandoffRequest, target models.AgentCard) error {
	if target.HandoffPolicy == models.HandoffDeny {
		return models.NewHandoffError(models.ErrNotAllowed, "target handoff_policy is deny")
	}
	if target.SafetyLevel == models.SafetyHigh && req.RequestedMode == models.HandoffModeToolBased {
		return models.NewHandoffError(models.ErrSafetyBlock, "high safety_level rejects tool_based handoff")
	}
	if target.HandoffPolicy == models.HandoffCoordinatorOnly && req.RequestedMode == models.HandoffModeToolBased {
		return models.NewHandoffError(models.ErrNotAllowed, "target accepts coordinator-mode handoff only")
	}
	switch target.Visibility {
	case models.VisibilityPrivate:
		if target.OwnerID == "" || target.OwnerID != req.CallerOwnerID {
			return models.NewHandoffError(models.ErrNotAllowed, "private target requires matching owner")
		}
	case models.VisibilityOrg:
		if target.OrgID == "" || target.OrgID != req.CallerOrgID {
			return models.NewHandoffError(models.ErrNotAllowed, "org target requires matching org")
		}
	}
	if len(target.AllowedCallerAgents) > 0 && !contains(target.AllowedCallerAgents, req.FromAgent) {
		return models.NewHandoffError(models.ErrNotAllowed, "caller agent not in allowed_caller_agents")
	}
	if len(target.AllowedCallerOwners) > 0 && !contains(target.AllowedCallerOwners, req.CallerOwnerID) {
		return models.NewHandoffError(models.ErrNotAllowed, "caller owner not in allowed_caller_owners")
	}
	if e.cfg.CrossOwnerDisabled && target.OwnerID != "" && req.CallerOwnerID != "" && target.OwnerID != req.CallerOwnerID {
		return models.NewHandoffError(models.ErrNotAllowed, "cross-owner handoff is disabled")
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// applyTargetFilter strips all attachments, recording a redaction
// report entry, when the target declares any RequiredScopes. Messages
// are left unchanged and scopes are not compared against anything.
func applyTargetFilter(hc *models.HandoffContext, target models.AgentCard) {
	if len(target.RequiredScopes) == 0 {
		return
	}
	if len(hc.Attachments) > 0 {
		hc.RedactionReport = append(hc.RedactionReport, "target filter: attachments stripped for scoped agent")
		hc.Attachments = nil
	}
}

// applyTokenBudget truncates message content to fit hc.TokenBudget,
// approximating tokens as four characters each.
func applyTokenBudget(hc *models.HandoffContext) {
	if hc.TokenBudget <= 0 {
		return
	}
	budget := hc.TokenBudget * 4
	total := 0
	for i := range hc.Messages {
		remaining := budget - total
		if remaining <= 0 {
			hc.Messages[i].Content = ""
			continue
		}
		if len(hc.Messages[i].Content) > remaining {
			hc.Messages[i].Content = hc.Messages[i].Content[:remaining]
			hc.RedactionReport = append(hc.RedactionReport, "token-budget filter: truncated a message")
		}
		total += len(hc.Messages[i].Content)
	}
}

// auditEntry is one hop recorded in HandoffContext.Metadata["history"],
// mirroring the teacher's AgentHistoryEntry but kept on the request
// value itself rather than in session storage.
type auditEntry struct {
	AgentID string    `json:"agent_id"`
	At      time.Time `json:"at"`
}

// appendAuditHistory records toAgent's hop in hc.Metadata["history"].
// fromAgent is recorded too when this is the first hop, so the trail
// always starts with the originating agent.
func appendAuditHistory(hc *models.HandoffContext, fromAgent, toAgent string) {
	if hc.Metadata == nil {
		hc.Metadata = make(map[string]any)
	}
	trail, _ := hc.Metadata["history"].([]auditEntry)
	if len(trail) == 0 && fromAgent != "" {
		trail = append(trail, auditEntry{AgentID: fromAgent, At: time.Now()})
	}
	trail = append(trail, auditEntry{AgentID: toAgent, At: time.Now()})
	hc.Metadata["history"] = trail
}

func lastUserMessageAndHistory(messages []models.HandoffMessage) (string, []models.Message) {
	if len(messages) == 0 {
		return "", nil
	}
	history := make([]models.Message, 0, len(messages)-1)
	for _, m := range messages[:len(messages)-1] {
		history = append(history, models.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	last := messages[len(messages)-1]
	return last.Content, history
}

// lookupOrClaim atomically checks the result cache and, on a miss,
// either registers the caller as the in-flight leader for requestID or
// hands back the existing leader's inflightCall for the caller to wait
// on. Exactly one caller per requestID becomes leader.
func (e *Engine) lookupOrClaim(requestID string) (cached models.HandoffResult, hit bool, call *inflightCall, leader bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cache[requestID]; ok && time.Since(entry.storedAt) <= e.cfg.IdempotencyTTL {
		return entry.result, true, nil, false
	}
	if c, ok := e.inflight[requestID]; ok {
		return models.HandoffResult{}, false, c, false
	}
	c := &inflightCall{done: make(chan struct{})}
	e.inflight[requestID] = c
	return models.HandoffResult{}, false, c, true
}

func (e *Engine) storeCache(requestID string, result models.HandoffResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[requestID] = cacheEntry{result: result, storedAt: time.Now()}
}

// pruneExpired removes cache entries older than IdempotencyTTL. Run on
// every Handoff call (spec.md §4.10: "pruning runs on each access").
func (e *Engine) pruneExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, entry := range e.cache {
		if time.Since(entry.storedAt) > e.cfg.IdempotencyTTL {
			delete(e.cache, id)
		}
	}
}
