package domain

import "context"

type callerKey struct{}

// Caller carries the authenticated identity of whoever triggered a run.
type Caller struct {
	Subject string
	Email   string
}

// Name returns the most readable identifier for the caller.
func (c Caller) Name() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// WithCaller stores a Caller in the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext extracts the Caller from the context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
