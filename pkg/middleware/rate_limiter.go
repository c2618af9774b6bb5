package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the token bucket kept per client key
type RateLimiterOptions struct {
	// Limit is the sustained rate in requests per second
	Limit rate.Limit
	Burst int
	// ExpiryDuration is how long an idle key keeps its bucket
	ExpiryDuration time.Duration
	// KeyFunc picks the bucket for a request. Defaults to ClientKey.
	KeyFunc func(*gin.Context) string
}

func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        ClientKey,
	}
}

// ClientKey limits signed-in users by id and everyone else by IP
func ClientKey(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return UserKey(userID)
	}
	return "ip:" + c.ClientIP()
}

// UserKey is the bucket key of a signed-in user
func UserKey(userID string) string {
	return "user:" + userID
}

type bucket struct {
	*rate.Limiter
	touched time.Time
}

// RateLimiter rejects requests with 429 once a key's bucket is empty
type RateLimiter struct {
	opts RateLimiterOptions
	log  *logger.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	sweepOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewRateLimiter uses DefaultRateLimiterOptions unless options are given
func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = ClientKey
	}
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = time.Hour
	}

	return &RateLimiter{
		opts:    opts,
		log:     log,
		buckets: map[string]*bucket{},
		stop:    make(chan struct{}),
	}
}

// Middleware starts the idle-key sweeper on first use
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	r.sweepOnce.Do(func() { go r.sweep() })

	return func(c *gin.Context) {
		key := r.opts.KeyFunc(c)
		if r.Allow(key) {
			c.Next()
			return
		}

		r.log.Warn("rate limit exceeded", "client", key, "method", c.Request.Method, "path", c.Request.URL.Path)

		c.Header("Retry-After", strconv.Itoa(r.retryAfterSeconds()))
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.opts.Burst))
		_ = c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimited, "Too many requests. Please try again later."))
		c.Abort()
	}
}

// Allow takes a token from key's bucket if one is available
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(r.opts.Limit, r.opts.Burst)}
		r.buckets[key] = b
	}
	b.touched = now
	r.mu.Unlock()

	return b.AllowN(now, 1)
}

// Stop ends the sweeper. Safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// retryAfterSeconds is the time for one token to refill, at least a second
func (r *RateLimiter) retryAfterSeconds() int {
	if r.opts.Limit <= 0 || r.opts.Limit == rate.Inf {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(r.opts.Limit))))
}

func (r *RateLimiter) sweep() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-tick.C:
			r.mu.Lock()
			for key, b := range r.buckets {
				if now.Sub(b.touched) > r.opts.ExpiryDuration {
					delete(r.buckets, key)
				}
			}
			r.mu.Unlock()
		}
	}
}
