package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequire_NoProof(t *testing.T) {
	err := Require(context.Background(), "alice")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestRequire_WithProof(t *testing.T) {
	ctx := WithActor(context.Background(), "alice")

	if err := Require(ctx, "alice"); err != nil {
		t.Errorf("Expected alice to be authorized, got %v", err)
	}
	if err := Require(ctx, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected bob to be unauthorized, got %v", err)
	}
}

func TestWithActor_Stacks(t *testing.T) {
	// A second proof does not displace the first: the plan engine stamps its
	// own identity on a context already carrying the user's.
	ctx := WithActor(context.Background(), "alice")
	ctx = WithActor(ctx, "engine")

	if err := Require(ctx, "alice"); err != nil {
		t.Errorf("Expected alice still authorized, got %v", err)
	}
	if err := Require(ctx, "engine"); err != nil {
		t.Errorf("Expected engine authorized, got %v", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	verifier, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	token, err := issuer.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity != "alice" {
		t.Errorf("Expected identity alice, got %s", identity)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	issuer, _ := NewIssuer("secret-a")
	verifier, _ := NewVerifier("secret-b")

	token, err := issuer.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for wrong secret, got %v", err)
	}
}

func TestJWTExpired(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	verifier, _ := NewVerifier("test-secret")

	token, err := issuer.Issue("alice", -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for expired token, got %v", err)
	}
}
