// Package ratelimit provides per-tool token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ToolLimiters holds one token bucket per tool name. It is safe for
// concurrent use; buckets for unknown tools are created on first use.
type ToolLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	nowFunc  func() time.Time
}

// NewToolLimiters creates limiters allowing perSecond sustained calls and
// burst calls at once for each of tools.
func NewToolLimiters(perSecond float64, burst int, tools ...string) *ToolLimiters {
	tl := &ToolLimiters{
		limiters: make(map[string]*rate.Limiter, len(tools)),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		nowFunc:  time.Now,
	}
	for _, name := range tools {
		tl.limiters[name] = rate.NewLimiter(tl.limit, burst)
	}
	return tl
}

// Allow reports whether a call to tool may proceed now and consumes a token
// if so.
func (tl *ToolLimiters) Allow(tool string) bool {
	tl.mu.Lock()
	l, ok := tl.limiters[tool]
	if !ok {
		l = rate.NewLimiter(tl.limit, tl.burst)
		tl.limiters[tool] = l
	}
	now := tl.nowFunc()
	tl.mu.Unlock()
	return l.AllowN(now, 1)
}

// CheckLimit returns an error when tool has exhausted its budget.
// A nil ToolLimiters never limits.
func CheckLimit(limiters *ToolLimiters, tool string) error {
	if limiters == nil {
		return nil
	}
	if !limiters.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
