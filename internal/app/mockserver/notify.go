package mockserver

import (
	"context"
	"sync"
	"time"
)

// notify wakes every waiter whenever a request is credited to an interaction.
// Each broadcast closes the current channel and installs a fresh one.
type notify struct {
	mu      sync.Mutex
	current chan struct{}
}

func newNotify() *notify {
	return &notify{current: make(chan struct{})}
}

// Wait blocks until the next broadcast, timeout or ctx cancellation, and
// reports whether a broadcast woke it.
func (n *notify) Wait(ctx context.Context, timeout time.Duration) bool {
	n.mu.Lock()
	woken := n.current
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-woken:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	return false
}

func (n *notify) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.current)
	n.current = make(chan struct{})
}
