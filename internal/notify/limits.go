package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps outgoing messages per minute.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing messagesPerMinute with an equal burst.
func NewRateLimiter(messagesPerMinute int) *RateLimiter {
	if messagesPerMinute < 1 {
		messagesPerMinute = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(messagesPerMinute)), messagesPerMinute),
		now:     time.Now,
	}
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.AllowN(rl.now(), 1)
}

// DedupLimiter suppresses a repeated key within a window.
type DedupLimiter struct {
	mu     sync.Mutex
	sent   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewDedupLimiter creates a limiter with the given window.
func NewDedupLimiter(window time.Duration) *DedupLimiter {
	return &DedupLimiter{
		sent:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// CanSend records key and reports whether it was not seen within the window.
func (dl *DedupLimiter) CanSend(key string) bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := dl.now()
	if sentAt, ok := dl.sent[key]; ok && now.Sub(sentAt) < dl.window {
		return false
	}
	dl.sent[key] = now
	return true
}

// Cleanup drops expired keys.
func (dl *DedupLimiter) Cleanup() {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := dl.now()
	for key, sentAt := range dl.sent {
		if now.Sub(sentAt) > dl.window {
			delete(dl.sent, key)
		}
	}
}
