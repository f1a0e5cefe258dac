package redis

import (
	"context"

	"golang.org/x/time/rate"
)

// waitLimiter blocks until lim permits one more write, or returns
// ctx's error if it is canceled first. A nil lim is the default,
// off-by-default posture: it never blocks.
func waitLimiter(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}
