package rate

import (
	"sync"

	"github.com/go-redis/redis_rate/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kinecosystem/agora-common/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	keyPrefix = "xprmntr-submit:"

	// DefaultLocalKeys is the number of keys a local limiter tracks before
	// evicting the least recently seen.
	DefaultLocalKeys = 10000
)

var limitedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xprmntr",
	Name:      "rate_limited_total",
	Help:      "Number of submissions rejected by a rate limiter",
}, []string{"limiter"})

func init() {
	limitedCounter = metrics.Register(limitedCounter).(*prometheus.CounterVec)
}

// Limiter limits submissions based on a client key.
type Limiter interface {
	// Allow reports whether an operation for key may proceed now.
	Allow(key string) (bool, error)
}

type redisRateLimiter struct {
	l     *redis_rate.Limiter
	limit *redis_rate.Limit
}

// NewRedisRateLimiter returns a redis backed limiter, shared by every
// receiver using the same redis.
func NewRedisRateLimiter(limiter *redis_rate.Limiter, limit *redis_rate.Limit) Limiter {
	return &redisRateLimiter{
		l:     limiter,
		limit: limit,
	}
}

// Allow implements Limiter.Allow.
func (r *redisRateLimiter) Allow(key string) (bool, error) {
	result, err := r.l.Allow(keyPrefix+key, r.limit)
	if err != nil {
		return false, err
	}

	if !result.Allowed {
		limitedCounter.WithLabelValues("redis").Inc()
	}
	return result.Allowed, nil
}

type localRateLimiter struct {
	limit rate.Limit
	burst int

	sync.Mutex
	limiters *lru.Cache
}

// NewLocalRateLimiter returns an in memory limiter allowing limit
// operations per second for each key. At most DefaultLocalKeys keys are
// tracked; an evicted key starts again with a full burst.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	return newLocalRateLimiter(limit, DefaultLocalKeys)
}

func newLocalRateLimiter(limit rate.Limit, size int) *localRateLimiter {
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}

	cache, err := lru.New(size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: cache,
	}
}

// Allow implements Limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.Lock()
	var limiter *rate.Limiter
	if cached, ok := l.limiters.Get(key); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.Unlock()

	allowed := limiter.Allow()
	if !allowed {
		limitedCounter.WithLabelValues("local").Inc()
	}
	return allowed, nil
}

// NoLimiter never limits submissions.
type NoLimiter struct {
}

// Allow implements Limiter.Allow.
func (n *NoLimiter) Allow(_ string) (bool, error) {
	return true, nil
}
