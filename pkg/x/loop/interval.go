package loop

import (
	"context"
	"time"
)

// RunInterval calls fn on every tick (and once up front when immediate is
// set) until ctx is done. fn runs on the calling goroutine, so a slow fn
// delays the next tick rather than overlapping it.
//
// A non-positive interval or a nil fn turns the loop off: fn is never
// called, not even up front, and RunInterval blocks until ctx is done. That
// lets callers keep a disabled job in an errgroup without special casing
// it (autosave-interval 0 relies on this).
func RunInterval(ctx context.Context, interval time.Duration, immediate bool, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil || interval <= 0 {
		<-ctx.Done()
		return
	}

	if immediate {
		fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
