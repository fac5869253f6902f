// Package queue throttles item claims per queue and per tenant so a
// noisy tenant or a hot queue cannot starve the rest of the deployment.
// Limits are advisory at claim time: an agent denied by the limiter
// simply polls again later, the stored item is untouched.
package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/conductor/id"
)

// Config bounds a single queue.
type Config struct {
	// Name matches the item's QueueName field.
	Name string

	// MaxActive caps how many items from this queue may be leased out
	// at once. Zero means unbounded.
	MaxActive int

	// PerSecond is the sustained claim rate allowed from this queue.
	// Zero disables rate limiting.
	PerSecond float64

	// Burst is the token-bucket burst size; defaults to 1 when
	// PerSecond is set.
	Burst int
}

// TenantConfig bounds one tenant's share of one queue. It layers on top
// of the queue's own limits; both must admit the claim.
type TenantConfig struct {
	QueueName string
	TenantID  id.TenantID
	MaxActive int
	PerSecond float64
	Burst     int
}

// bucket is the runtime state behind a queue or queue+tenant limit.
type bucket struct {
	limiter   *rate.Limiter
	maxActive int
	active    int
}

func newBucket(maxActive int, perSecond float64, burst int) *bucket {
	b := &bucket{maxActive: maxActive}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return b
}

func (b *bucket) fits() bool {
	return b == nil || b.maxActive <= 0 || b.active < b.maxActive
}

func (b *bucket) allow() bool {
	return b == nil || b.limiter == nil || b.limiter.Allow()
}

// Limiter enforces per-queue and per-tenant claim limits. Queues and
// tenants without a configuration are unlimited. Safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	queues  map[string]*bucket
	tenants map[string]*bucket
}

// NewLimiter creates a Limiter with the given queue configurations.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{
		queues:  make(map[string]*bucket, len(configs)),
		tenants: make(map[string]*bucket),
	}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newBucket(cfg.MaxActive, cfg.PerSecond, cfg.Burst)
	}
	return l
}

func tenantKey(queue string, tenantID id.TenantID) string {
	return queue + ":" + tenantID.String()
}

// Acquire asks whether one item may be claimed from the queue by the
// tenant. On true it counts the item as active on both levels; the
// caller must Release it when the item finishes. On false nothing is
// consumed and the caller should retry after its poll interval.
func (l *Limiter) Acquire(queue string, tenantID id.TenantID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	qb := l.queues[queue]
	tb := l.tenants[tenantKey(queue, tenantID)]

	if !qb.fits() || !tb.fits() {
		return false
	}
	if !qb.allow() || !tb.allow() {
		return false
	}

	if qb != nil {
		qb.active++
	}
	if tb != nil {
		tb.active++
	}
	return true
}

// Release returns the active slot taken by Acquire.
func (l *Limiter) Release(queue string, tenantID id.TenantID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if qb := l.queues[queue]; qb != nil && qb.active > 0 {
		qb.active--
	}
	if tb := l.tenants[tenantKey(queue, tenantID)]; tb != nil && tb.active > 0 {
		tb.active--
	}
}

// SetConfig installs or replaces a queue's limits, preserving the
// current active count across the swap.
func (l *Limiter) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := newBucket(cfg.MaxActive, cfg.PerSecond, cfg.Burst)
	if prev := l.queues[cfg.Name]; prev != nil {
		b.active = prev.active
	}
	l.queues[cfg.Name] = b
}

// SetTenantConfig installs or replaces one tenant's limits on one
// queue, preserving the current active count across the swap.
func (l *Limiter) SetTenantConfig(cfg TenantConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := tenantKey(cfg.QueueName, cfg.TenantID)
	b := newBucket(cfg.MaxActive, cfg.PerSecond, cfg.Burst)
	if prev := l.tenants[key]; prev != nil {
		b.active = prev.active
	}
	l.tenants[key] = b
}

// Active returns the number of leased items counted against the queue.
func (l *Limiter) Active(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.queues[queue]; b != nil {
		return b.active
	}
	return 0
}

// TenantActive returns the number of leased items counted against the
// tenant on the queue.
func (l *Limiter) TenantActive(queue string, tenantID id.TenantID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.tenants[tenantKey(queue, tenantID)]; b != nil {
		return b.active
	}
	return 0
}
