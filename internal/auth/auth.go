package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the acting identity named by an operation
// has no caller-authenticity proof on the context.
var ErrUnauthorized = errors.New("caller not authorized")

type proofKey struct{}

// WithActor records a caller-authenticity proof for identity on the context.
// The host decides how the proof was obtained (verified token, trusted
// process, test fixture); the core only checks which identity was proven.
func WithActor(ctx context.Context, identity string) context.Context {
	proofs, _ := ctx.Value(proofKey{}).(map[string]struct{})
	next := make(map[string]struct{}, len(proofs)+1)
	for id := range proofs {
		next[id] = struct{}{}
	}
	next[identity] = struct{}{}
	return context.WithValue(ctx, proofKey{}, next)
}

// Require fails unless identity carries a proof on the context.
func Require(ctx context.Context, identity string) error {
	proofs, _ := ctx.Value(proofKey{}).(map[string]struct{})
	if _, ok := proofs[identity]; !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, identity)
	}
	return nil
}
