package agentcard

import (
	"testing"

	"github.com/lumenforge/agentrt/pkg/models"
)

func card(id string, vis models.Visibility, owner, org string, policy models.HandoffPolicy) *Runtime {
	return &Runtime{Card: models.AgentCard{
		AgentID: id, Visibility: vis, OwnerID: owner, OrgID: org, HandoffPolicy: policy,
		Skills: []string{"billing"},
	}}
}

func TestVisiblePublicAlwaysVisible(t *testing.T) {
	target := models.AgentCard{Visibility: models.VisibilityPublic}
	if !Visible(target, models.Caller{}) {
		t.Fatal("expected public agent to be visible")
	}
}

func TestVisibleOrgRequiresMatchingNonEmptyOrg(t *testing.T) {
	target := models.AgentCard{Visibility: models.VisibilityOrg, OrgID: "acme"}
	if Visible(target, models.Caller{OrgID: "other"}) {
		t.Fatal("expected mismatched org to be hidden")
	}
	if !Visible(target, models.Caller{OrgID: "acme"}) {
		t.Fatal("expected matching org to be visible")
	}
	if Visible(models.AgentCard{Visibility: models.VisibilityOrg}, models.Caller{}) {
		t.Fatal("expected empty org_id to never match")
	}
}

func TestVisiblePrivateRequiresMatchingOwner(t *testing.T) {
	target := models.AgentCard{Visibility: models.VisibilityPrivate, OwnerID: "u1"}
	if Visible(target, models.Caller{OwnerID: "u2"}) {
		t.Fatal("expected mismatched owner to be hidden")
	}
	if !Visible(target, models.Caller{OwnerID: "u1"}) {
		t.Fatal("expected matching owner to be visible")
	}
}

func TestFindBySkillFiltersByVisibilityAndSkill(t *testing.T) {
	r := NewRegistry()
	r.Register(card("billing-bot", models.VisibilityPublic, "", "", models.HandoffAuto))
	r.Register(card("private-bot", models.VisibilityPrivate, "owner1", "", models.HandoffAuto))

	results := r.FindBySkill("billing", models.Caller{OwnerID: "someone-else"})
	if len(results) != 1 || results[0].AgentID != "billing-bot" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestCanHandoffDeniesOnPolicyRegardlessOfVisibility(t *testing.T) {
	r := NewRegistry()
	r.Register(card("target", models.VisibilityPublic, "", "", models.HandoffDeny))
	if r.CanHandoff("from", "target", models.Caller{}) {
		t.Fatal("expected deny policy to block handoff")
	}
}

func TestToHandoffToolsExcludesSelfAndDeny(t *testing.T) {
	r := NewRegistry()
	r.Register(card("self", models.VisibilityPublic, "", "", models.HandoffAuto))
	r.Register(card("denied", models.VisibilityPublic, "", "", models.HandoffDeny))
	r.Register(card("allowed", models.VisibilityPublic, "", "", models.HandoffAuto))

	toolsOut := r.ToHandoffTools(models.Caller{AgentID: "self"})
	if len(toolsOut) != 1 || toolsOut[0].Name != "transfer_to_allowed" {
		t.Fatalf("unexpected tools: %+v", toolsOut)
	}
	if len(toolsOut[0].Parameters) != 1 || !toolsOut[0].Parameters[0].Required || toolsOut[0].Parameters[0].Name != "reason" {
		t.Fatalf("expected single required reason parameter, got %+v", toolsOut[0].Parameters)
	}
}
