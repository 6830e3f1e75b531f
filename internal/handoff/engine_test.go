package handoff

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumenforge/agentrt/internal/agentcard"
	"github.com/lumenforge/agentrt/pkg/models"
)

func newTestEngine(t *testing.T, run agentcard.RunFunc, card models.AgentCard) (*Engine, *agentcard.Registry) {
	t.Helper()
	reg := agentcard.NewRegistry()
	if err := reg.Register(&agentcard.Runtime{Card: card, Run: run}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return New(Config{Registry: reg}), reg
}

func echoRun(output string, err error) agentcard.RunFunc {
	return func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error) {
		if err != nil {
			return models.AgentResult{}, err
		}
		return models.AgentResult{FinalOutput: output, StoppedReason: models.StoppedCompleted}, nil
	}
}

func baseRequest(to string) *models.HandoffRequest {
	return &models.HandoffRequest{
		FromAgent: "caller", ToAgent: to, RequestedMode: models.HandoffModeToolBased,
		Context: &models.HandoffContext{Messages: []models.HandoffMessage{{Role: models.RoleUser, Content: "help me"}}},
	}
}

func TestHandoffSucceedsAndReturnsOutput(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("done", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	})
	result, err := engine.Handoff(context.Background(), baseRequest("target"))
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if result.Status != models.HandoffStatusSuccess || result.Output != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHandoffNotFoundWhenTargetMissing(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{AgentID: "other", Visibility: models.VisibilityPublic})
	result, err := engine.Handoff(context.Background(), baseRequest("missing"))
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if result.Error == nil || result.Error.Code != models.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", result.Error)
	}
}

func TestHandoffDeniesOnPolicyDeny(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffDeny,
	})
	result, _ := engine.Handoff(context.Background(), baseRequest("target"))
	if result.Error == nil || result.Error.Code != models.ErrNotAllowed {
		t.Fatalf("expected NOT_ALLOWED, got %+v", result.Error)
	}
}

func TestHandoffBlocksHighSafetyToolBasedMode(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto, SafetyLevel: models.SafetyHigh,
	})
	result, _ := engine.Handoff(context.Background(), baseRequest("target"))
	if result.Error == nil || result.Error.Code != models.ErrSafetyBlock {
		t.Fatalf("expected SAFETY_BLOCK, got %+v", result.Error)
	}
}

func TestHandoffDetectsLoopViaVisitedAgents(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	})
	req := baseRequest("target")
	req.VisitedAgents = []string{"target"}
	result, _ := engine.Handoff(context.Background(), req)
	if result.Status != models.HandoffStatusLoopDetected {
		t.Fatalf("expected loop_detected, got %+v", result)
	}
}

func TestHandoffDetectsLoopViaMaxHopCount(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	})
	req := baseRequest("target")
	req.HopCount = DefaultMaxHopCount
	result, _ := engine.Handoff(context.Background(), req)
	if result.Status != models.HandoffStatusLoopDetected {
		t.Fatalf("expected loop_detected, got %+v", result)
	}
}

func TestHandoffIdempotencyReturnsCachedResultOnSecondCall(t *testing.T) {
	calls := 0
	run := func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error) {
		calls++
		return models.AgentResult{FinalOutput: "first"}, nil
	}
	engine, _ := newTestEngine(t, run, models.AgentCard{AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto})

	req := baseRequest("target")
	req.RequestID = "req-1"
	first, _ := engine.Handoff(context.Background(), req)
	second, _ := engine.Handoff(context.Background(), req)

	if calls != 1 {
		t.Fatalf("expected target to run once, ran %d times", calls)
	}
	if first.CacheHit {
		t.Fatal("expected first call to be a cache miss")
	}
	if !second.CacheHit || second.Output != "first" {
		t.Fatalf("expected cached result on second call, got %+v", second)
	}
}

func TestHandoffConcurrentCallersDedupeViaInFlightClaim(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	run := func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return models.AgentResult{FinalOutput: "done"}, nil
	}
	engine, _ := newTestEngine(t, run, models.AgentCard{AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto})

	req1 := baseRequest("target")
	req1.RequestID = "concurrent-1"
	req2 := baseRequest("target")
	req2.RequestID = "concurrent-1"

	var wg sync.WaitGroup
	results := make([]*models.HandoffResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = engine.Handoff(context.Background(), req1)
	}()
	go func() {
		defer wg.Done()
		<-started
		results[1], _ = engine.Handoff(context.Background(), req2)
	}()
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected target to run exactly once, ran %d times", calls)
	}
	hits := 0
	for _, r := range results {
		if r.CacheHit {
			hits++
		}
	}
	if hits != 1 {
		t.Fatalf("expected exactly one cache_hit result, got %d", hits)
	}
}

func TestHandoffWrapsTargetErrorAsToolError(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("", fmt.Errorf("boom")), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	})
	result, _ := engine.Handoff(context.Background(), baseRequest("target"))
	if result.Error == nil || result.Error.Code != models.ErrToolError {
		t.Fatalf("expected TOOL_ERROR, got %+v", result.Error)
	}
}

func TestHandoffTimesOutUnderDeadline(t *testing.T) {
	run := func(ctx context.Context, userInput string, history []models.Message, extraContext string) (models.AgentResult, error) {
		select {
		case <-ctx.Done():
			return models.AgentResult{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return models.AgentResult{FinalOutput: "too slow"}, nil
		}
	}
	engine, _ := newTestEngine(t, run, models.AgentCard{AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto})
	req := baseRequest("target")
	req.DeadlineMS = 20
	result, _ := engine.Handoff(context.Background(), req)
	if result.Status != models.HandoffStatusTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
}

func TestHandoffSignsIdentityTokenWhenKeyConfigured(t *testing.T) {
	reg := agentcard.NewRegistry()
	if err := reg.Register(&agentcard.Runtime{Card: models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	}, Run: echoRun("done", nil)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine := New(Config{Registry: reg, SigningKey: []byte("secret")})

	req := baseRequest("target")
	req.CallerOwnerID = "owner-a"
	if _, err := engine.Handoff(context.Background(), req); err != nil {
		t.Fatalf("Handoff: %v", err)
	}

	token, _ := req.Metadata["token"].(string)
	if token == "" {
		t.Fatal("expected a signed identity token in req.Metadata")
	}
	claims, err := VerifyIdentityToken([]byte("secret"), token)
	if err != nil {
		t.Fatalf("VerifyIdentityToken: %v", err)
	}
	if claims.CallerOwnerID != "owner-a" || claims.FromAgent != "caller" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.RegisteredClaims.ID == "" {
		t.Fatal("expected a non-empty jti claim")
	}
	if _, err := VerifyIdentityToken([]byte("wrong-key"), token); err == nil {
		t.Fatal("expected verification to fail with the wrong key")
	}
}

func TestHandoffAppendsAuditHistory(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("done", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPublic, HandoffPolicy: models.HandoffAuto,
	})
	req := baseRequest("target")
	if _, err := engine.Handoff(context.Background(), req); err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	trail, ok := req.Context.Metadata["history"].([]auditEntry)
	if !ok || len(trail) != 2 {
		t.Fatalf("expected a 2-entry audit trail, got %+v", req.Context.Metadata["history"])
	}
	if trail[0].AgentID != "caller" || trail[1].AgentID != "target" {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestHandoffPrivateVisibilityRequiresMatchingOwner(t *testing.T) {
	engine, _ := newTestEngine(t, echoRun("x", nil), models.AgentCard{
		AgentID: "target", Visibility: models.VisibilityPrivate, OwnerID: "owner-a", HandoffPolicy: models.HandoffAuto,
	})
	req := baseRequest("target")
	req.CallerOwnerID = "owner-b"
	result, _ := engine.Handoff(context.Background(), req)
	if result.Error == nil || result.Error.Code != models.ErrNotAllowed {
		t.Fatalf("expected NOT_ALLOWED, got %+v", result.Error)
	}
}
