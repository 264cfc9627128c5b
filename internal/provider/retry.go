package provider

import (
	"context"
	"errors"
	"fmt"
)

// WithRefresh runs call and, if the provider answers 401, refreshes the session
// once and runs call again. A second 401, or a failed refresh, is returned to
// the caller. Other failures are never retried.
func WithRefresh[T any](ctx context.Context, session Session, call func(context.Context) (T, error)) (T, error) {
	var zero T

	out, err := call(ctx)
	if err == nil {
		return out, nil
	}
	if !IsUnauthorized(err) {
		return zero, err
	}

	if _, refreshErr := session.Refresh(ctx); refreshErr != nil {
		return zero, fmt.Errorf("refresh after unauthorized: %w", errors.Join(err, refreshErr))
	}

	out, err = call(ctx)
	if err != nil {
		if IsUnauthorized(err) {
			return zero, fmt.Errorf("unauthorized after refresh: %w", err)
		}
		return zero, err
	}
	return out, nil
}
