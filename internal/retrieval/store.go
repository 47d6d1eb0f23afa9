package retrieval

import (
	"context"
	"time"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

// WithStoreTimeout bounds every store call of a BuildContext. Zero leaves
// calls bounded only by the caller's context.
func (b *Builder) WithStoreTimeout(d time.Duration) *Builder {
	b.storeTimeout = d
	return b
}

// storeCall runs fn with the store timeout and returns when fn does or when
// the deadline passes, whichever is first. A store that ignores its context
// cannot stall the build; its late result is discarded.
func storeCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ckgerr.Wrap(ckgerr.Timeout, "store call", ctx.Err())
	}
}

func timedOut(err error) bool { return ckgerr.HasCode(err, ckgerr.Timeout) }
