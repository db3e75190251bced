package http

import (
	"sync"
	"time"
)

// writeLimiter admits at most limit ledger writes per client in each fixed
// window. Windows start at a client's first write and are swept once they end.
type writeLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients map[string]*writeWindow

	done     chan struct{}
	stopOnce sync.Once
}

type writeWindow struct {
	start  time.Time
	writes int
}

func newWriteLimiter(limit int, window time.Duration) *writeLimiter {
	if limit < 1 {
		limit = 1
	}
	return &writeLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*writeWindow),
		done:    make(chan struct{}),
	}
}

// allow records a write from client. When the client is over its limit it
// returns false and how long until its window resets.
func (l *writeLimiter) allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok || now.Sub(w.start) >= l.window {
		l.clients[client] = &writeWindow{start: now, writes: 1}
		return true, 0
	}
	if w.writes >= l.limit {
		return false, w.start.Add(l.window).Sub(now)
	}
	w.writes++
	return true, 0
}

// sweep forgets clients whose window has ended and returns how many remain.
func (l *writeLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for client, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, client)
		}
	}
	return len(l.clients)
}

// run sweeps every interval until stop is called.
func (l *writeLimiter) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

func (l *writeLimiter) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}
