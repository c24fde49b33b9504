package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/docchat/internal/config"
)

// clientLimiters holds one set of token buckets per client for one route
// group. A request is admitted only if every bucket has a token.
type clientLimiters struct {
	rules []config.RateRule

	mu      sync.Mutex
	clients map[string]*clientEntry
	now     func() time.Time
}

type clientEntry struct {
	limiters []*rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rules []config.RateRule) *clientLimiters {
	return &clientLimiters{
		rules:   rules,
		clients: make(map[string]*clientEntry),
		now:     time.Now,
	}
}

func (l *clientLimiters) entry(key string) *clientEntry {
	e, ok := l.clients[key]
	if !ok {
		e = &clientEntry{limiters: make([]*rate.Limiter, len(l.rules))}
		for i, r := range l.rules {
			e.limiters[i] = rate.NewLimiter(rate.Every(r.Per/time.Duration(r.Count)), r.Count)
		}
		l.clients[key] = e
	}
	return e
}

// Allow reports whether key may make a request now. Tokens are only spent
// when every rule admits the request.
func (l *clientLimiters) Allow(key string) bool {
	if len(l.rules) == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entry(key)
	e.lastSeen = now

	reservations := make([]*rate.Reservation, 0, len(e.limiters))
	for _, lim := range e.limiters {
		r := lim.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}
			return false
		}
		reservations = append(reservations, r)
	}
	return true
}

// Sweep forgets clients idle for longer than idle.
func (l *clientLimiters) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked clients.
func (l *clientLimiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
