package service

import (
	"context"
	"errors"
	"testing"
)

func TestValidVaultToken(t *testing.T) {
	cases := map[string]bool{
		testVaultID: true,
		"0A1B2C3D-0A1B-0A1B-0A1B-0A1B2C3D4E5F": false,
		"":                                     false,
		"0a1b2c3d0a1b0a1b0a1b0a1b2c3d4e5f":     false,
		" " + testVaultID:                      false,
	}
	for token, want := range cases {
		if got := ValidVaultToken(token); got != want {
			t.Fatalf("ValidVaultToken(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestReconcileTokenCreatesThenUpdatesInPlace(t *testing.T) {
	repo := newFakeVaultRepo()
	svc := NewVaultService(repo)
	ctx := context.Background()

	action, err := svc.ReconcileToken(ctx, 7, testGatewayID, testVaultID)
	if err != nil || action != TokenCreated {
		t.Fatalf("expected created, got %s err=%v", action, err)
	}
	first, _ := svc.Lookup(ctx, 7, testGatewayID)

	action, err = svc.ReconcileToken(ctx, 7, testGatewayID, otherVaultID)
	if err != nil || action != TokenUpdated {
		t.Fatalf("expected updated, got %s err=%v", action, err)
	}
	second, err := svc.Lookup(ctx, 7, testGatewayID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if second.ID != first.ID || second.Token != otherVaultID {
		t.Fatalf("expected same row with new value, got id=%d token=%s", second.ID, second.Token)
	}
}

func TestReconcileTokenCollapsesDuplicates(t *testing.T) {
	repo := newFakeVaultRepo()
	repo.seed(7, testVaultID, testVaultID, "legacy")
	svc := NewVaultService(repo)
	ctx := context.Background()

	if _, err := svc.Lookup(ctx, 7, testGatewayID); !errors.Is(err, ErrInconsistentTokens) {
		t.Fatalf("expected inconsistent tokens, got %v", err)
	}

	action, err := svc.ReconcileToken(ctx, 7, testGatewayID, otherVaultID)
	if err != nil || action != TokenReplaced {
		t.Fatalf("expected replaced, got %s err=%v", action, err)
	}
	token, err := svc.Lookup(ctx, 7, testGatewayID)
	if err != nil || token == nil || token.Token != otherVaultID {
		t.Fatalf("expected single fresh token, got %+v err=%v", token, err)
	}
	if len(repo.tokens) != 1 {
		t.Fatalf("expected 1 stored token, got %d", len(repo.tokens))
	}
}

func TestReconcileTokenIgnoresEmptyAndMalformed(t *testing.T) {
	repo := newFakeVaultRepo()
	svc := NewVaultService(repo)

	for _, candidate := range []string{"", "   ", "not-a-token", "0A1B2C3D-0A1B-0A1B-0A1B-0A1B2C3D4E5F"} {
		action, err := svc.ReconcileToken(context.Background(), 7, testGatewayID, candidate)
		if err != nil || action != TokenUnchanged {
			t.Fatalf("candidate %q: expected no-op, got %s err=%v", candidate, action, err)
		}
	}
	if len(repo.tokens) != 0 {
		t.Fatalf("expected no tokens, got %d", len(repo.tokens))
	}
}

func TestReconcileTokenSequenceKeepsLastValidValue(t *testing.T) {
	repo := newFakeVaultRepo()
	svc := NewVaultService(repo)
	ctx := context.Background()

	sequence := []string{testVaultID, "", "bad", otherVaultID, "ZZZ", testVaultID, otherVaultID, ""}
	lastValid := ""
	for _, candidate := range sequence {
		if ValidVaultToken(candidate) {
			lastValid = candidate
		}
		if _, err := svc.ReconcileToken(ctx, 9, testGatewayID, candidate); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		items, _ := repo.List(ctx, 9, testGatewayID)
		if len(items) > 1 {
			t.Fatalf("expected at most one token, got %d", len(items))
		}
	}

	token, err := svc.Lookup(ctx, 9, testGatewayID)
	if err != nil || token == nil || token.Token != lastValid {
		t.Fatalf("expected %s, got %+v err=%v", lastValid, token, err)
	}
}

func TestPurgeAllOnlyTouchesOneCustomer(t *testing.T) {
	repo := newFakeVaultRepo()
	repo.seed(7, testVaultID, otherVaultID)
	repo.seed(8, testVaultID)
	svc := NewVaultService(repo)

	if err := svc.PurgeAll(context.Background(), 7, testGatewayID); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if items, _ := repo.List(context.Background(), 7, testGatewayID); len(items) != 0 {
		t.Fatalf("expected customer 7 purged, got %d", len(items))
	}
	if items, _ := repo.List(context.Background(), 8, testGatewayID); len(items) != 1 {
		t.Fatalf("expected customer 8 untouched, got %d", len(items))
	}
}
