package retry

import "context"

type contextKey struct{}

// ToContext attaches the attempt policy for one fetch to ctx.
// Do reads it back, so every attempt of that fetch shares the same budget and delay.
// A nil retrier leaves ctx untouched.
func ToContext(ctx context.Context, retrier Retrier) context.Context {
	if retrier == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, retrier)
}

// FromContext returns the attempt policy attached by ToContext, or nil.
func FromContext(ctx context.Context) Retrier {
	if retrier, ok := ctx.Value(contextKey{}).(Retrier); ok {
		return retrier
	}
	return nil
}

// FromContextOrNoop is FromContext with a single-attempt fallback:
// a fetch without a policy is tried exactly once.
func FromContextOrNoop(ctx context.Context) Retrier {
	if retrier := FromContext(ctx); retrier != nil {
		return retrier
	}
	return &NoopRetrier{}
}
