package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter keeps one token bucket per user id for message sends.
type userLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &userLimiter{
		m:     make(map[string]*rate.Limiter),
		rps:   rps,
		burst: burst,
	}
}

func (p *userLimiter) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func (p *userLimiter) Allow(key string) bool {
	return p.get(key).Allow()
}
