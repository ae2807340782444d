// Package actor carries the authenticated user identity through a request.
// Every mutating core operation requires an actor; there are no anonymous
// writes.
package actor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNoActor = errors.New("no authenticated actor in context")

type Actor struct {
	UserID uuid.UUID
	Name   string
	Role   string
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor attached to the request context.
func FromContext(ctx context.Context) (Actor, error) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	if !ok || a.UserID == uuid.Nil {
		return Actor{}, ErrNoActor
	}
	return a, nil
}
