package core

import (
	"context"

	"github.com/google/uuid"
)

type roundIDKey struct{}
type tickKey struct{}

// WithRoundID attaches a decision round id to the context.
func WithRoundID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, roundIDKey{}, id)
}

// RoundID returns the round id if present.
func RoundID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(roundIDKey{}).(string)
	return id, ok
}

// EnsureRoundID ensures a round id exists in the context.
func EnsureRoundID(ctx context.Context) (context.Context, string) {
	if id, ok := RoundID(ctx); ok {
		return ctx, id
	}
	id := NewRoundID()
	return WithRoundID(ctx, id), id
}

// NewRoundID returns a fresh round identifier.
func NewRoundID() string {
	return "round-" + uuid.NewString()
}

// WithTick attaches the current simulation tick to the context.
func WithTick(ctx context.Context, tick uint64) context.Context {
	return context.WithValue(ctx, tickKey{}, tick)
}

// Tick returns the simulation tick carried by ctx, or zero.
func Tick(ctx context.Context) uint64 {
	tick, _ := ctx.Value(tickKey{}).(uint64)
	return tick
}
