package principal

import (
	"context"
)

type contextKey struct{}

// WithPrincipal stores the caller in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the validated caller stored in ctx.
func FromContext(ctx context.Context) (Principal, error) {
	if ctx == nil {
		return Principal{}, ErrUnauthenticated
	}
	p, ok := ctx.Value(contextKey{}).(Principal)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}
