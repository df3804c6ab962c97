package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTTL         = 10 * time.Minute
)

// GlobalConnectionLimiter caps concurrent overlay connections for the process.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire takes a slot, returning false at capacity.
func (l *GlobalConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// CapacityPct returns the share of slots in use as a percentage.
func (l *GlobalConnectionLimiter) CapacityPct() float64 {
	if l.max == 0 {
		return 0
	}
	return float64(l.Current()) / float64(l.max) * 100
}

// IPConnectionLimiter caps concurrent overlay connections per client IP.
type IPConnectionLimiter struct {
	mu     sync.RWMutex
	ips    map[string]int
	maxPer int
}

func NewIPConnectionLimiter(maxPer int) *IPConnectionLimiter {
	return &IPConnectionLimiter{
		ips:    make(map[string]int),
		maxPer: maxPer,
	}
}

func (l *IPConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *IPConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.ips[ip]
	switch {
	case count > 1:
		l.ips[ip] = count - 1
	case count == 1:
		delete(l.ips, ip)
	}
}

func (l *IPConnectionLimiter) Count(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ips[ip]
}

// UniqueIPs returns the number of IPs holding at least one connection.
func (l *IPConnectionLimiter) UniqueIPs() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ips)
}

// ConnectionRateLimiter is a per-IP token bucket for new connections. Buckets idle for
// longer than rateLimiterIdleTTL are dropped on the next sweep.
type ConnectionRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	buckets   map[string]*rateBucket
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionRateLimiter(perSecond float64, burst int, clock clockwork.Clock) *ConnectionRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionRateLimiter{
		clock:     clock,
		buckets:   make(map[string]*rateBucket),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(rateLimiterCleanupInterval),
	}
}

func (l *ConnectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.sweep(now)
		l.cleanupAt = now.Add(rateLimiterCleanupInterval)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &rateBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep must be called with mu held.
func (l *ConnectionRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleTTL)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// Tracked returns the number of IPs with a live bucket.
func (l *ConnectionRateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// LimitReason says which limit rejected a connection.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits combines the global, per-IP and rate limiters guarding the overlay endpoint.
type ConnectionLimits struct {
	global *GlobalConnectionLimiter
	perIP  *IPConnectionLimiter
	rate   *ConnectionRateLimiter
}

type ConnectionLimitsConfig struct {
	MaxConnections int
	MaxPerIP       int
	RatePerSecond  float64
	Burst          int
	Clock          clockwork.Clock
}

func NewConnectionLimits(cfg ConnectionLimitsConfig) *ConnectionLimits {
	return &ConnectionLimits{
		global: NewGlobalConnectionLimiter(int64(cfg.MaxConnections)),
		perIP:  NewIPConnectionLimiter(cfg.MaxPerIP),
		rate:   NewConnectionRateLimiter(cfg.RatePerSecond, cfg.Burst, cfg.Clock),
	}
}

// Acquire reserves a connection for ip. On rejection nothing is held and the reason is returned.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.Allow(ip) {
		return l.reject(LimitReasonRate)
	}
	if !l.global.Acquire() {
		return l.reject(LimitReasonGlobal)
	}
	if !l.perIP.Acquire(ip) {
		l.global.Release()
		return l.reject(LimitReasonPerIP)
	}

	l.observe()
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.perIP.Release(ip)
	l.global.Release()
	l.observe()
}

func (l *ConnectionLimits) reject(reason LimitReason) (bool, LimitReason) {
	metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
	return false, reason
}

func (l *ConnectionLimits) observe() {
	metrics.WebSocketConnectionCapacity.Set(l.global.CapacityPct())
	metrics.WebSocketUniqueIPs.Set(float64(l.perIP.UniqueIPs()))
}

func (l *ConnectionLimits) Global() *GlobalConnectionLimiter { return l.global }

func (l *ConnectionLimits) PerIP() *IPConnectionLimiter { return l.perIP }

func (l *ConnectionLimits) Rate() *ConnectionRateLimiter { return l.rate }
