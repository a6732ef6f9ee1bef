package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RefreshFunc renews the credentials used by subsequent requests.
type RefreshFunc func(ctx context.Context) error

// WithAuthRefresh runs fn and, if it fails with an authorization expiry,
// calls refresh and runs fn exactly once more. A second failure is returned
// as-is so the caller can treat it as fatal.
func WithAuthRefresh[T any](ctx context.Context, refresh RefreshFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	val, err := fn(ctx)
	if err == nil || !IsAuthExpired(err) || refresh == nil {
		return val, err
	}

	zap.L().Warn("authorization expired, refreshing credentials", zap.Error(err))
	if rerr := refresh(ctx); rerr != nil {
		var zero T
		return zero, eris.Wrap(rerr, "resilience: refresh credentials")
	}
	return fn(ctx)
}
