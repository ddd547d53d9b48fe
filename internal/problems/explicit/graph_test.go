package explicit

import (
	"context"
	"testing"
)

func TestLoadDiamond(t *testing.T) {
	g, err := Load("testdata/diamond.json")
	if err != nil {
		t.Fatalf("failed to load graph: %v", err)
	}

	if g.Root() != "A" {
		t.Errorf("expected root A, got %s", g.Root())
	}

	succs, err := g.Successors(context.Background(), "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(succs) != 2 || succs[0].State != "B" || succs[1].State != "C" {
		t.Fatalf("expected successors [B C] in declaration order, got %+v", succs)
	}
	if succs[0].Action != "A->B" {
		t.Errorf("expected default label A->B, got %s", succs[0].Action)
	}
	if got := g.Cost("A", "C", "A->C"); got != 4 {
		t.Errorf("expected cost 4, got %v", got)
	}
	if !g.IsGoal("D") || g.IsGoal("B") {
		t.Error("expected only D to be a goal")
	}
}

func TestLeavesAreGoalsWithoutDeclaredGoals(t *testing.T) {
	g, err := Load("testdata/andor.json")
	if err != nil {
		t.Fatalf("failed to load graph: %v", err)
	}
	if !g.IsGoal("go") {
		t.Error("expected leaf go to be a goal")
	}
	if g.IsGoal("backend") {
		t.Error("expected inner node backend not to be a goal")
	}
	if !g.IsAnd("frontend") || g.IsAnd("backend") {
		t.Error("unexpected AND declarations")
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	if _, err := Parse([]byte(`{"version": 2, "root": "A"}`)); err == nil {
		t.Error("expected error for version 2")
	}
	if _, err := Parse([]byte(`{"version": 1}`)); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestSuccessorsHonourCancellation(t *testing.T) {
	g, err := Load("testdata/diamond.json")
	if err != nil {
		t.Fatalf("failed to load graph: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Successors(ctx, "A"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
