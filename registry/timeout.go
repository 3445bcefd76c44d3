package registry

import (
	"sync"
	"time"
)

// timeoutHandle wraps a time.Timer with a sync.Once guard so the race
// between "handler matched/removed" and "timer fired" resolves exactly
// once, mirroring internal/session/cancel.go's sync.Once-guarded
// Cancel/Done pattern.
type timeoutHandle struct {
	timer *time.Timer
	once  sync.Once
}

func newTimeoutHandle(d time.Duration, onFire func()) *timeoutHandle {
	h := &timeoutHandle{}
	h.timer = time.AfterFunc(d, func() {
		h.once.Do(onFire)
	})
	return h
}

// cancel stops the timer. If the timer already fired, onFire has
// already run (or is about to, racily) and this is a safe no-op on
// the timeoutHandle's own accounting; Registry.fireTimeout separately
// guards against acting on an already-removed handler.
func (h *timeoutHandle) cancel() {
	h.timer.Stop()
}
