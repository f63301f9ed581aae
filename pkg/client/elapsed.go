package client

import (
	"context"
	"time"
)

// RunElapsedTicker calls fn once a second with the running timer's elapsed
// duration, computed locally from its server-assigned start time. While no
// timer is running, fn is not called. Blocks until ctx is cancelled.
func (r *Reconciler) RunElapsedTicker(ctx context.Context, fn func(time.Duration)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if snap := r.Snapshot(); snap.Timer != nil {
				fn(snap.Timer.Elapsed(now))
			}
		}
	}
}
