package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"vesselwatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Redis        *redis.Client // nil uses the in-process limiter only
	Requests     int
	Window       time.Duration
	KeyPrefix    string
	SkipPaths    []string
	ErrorMessage string
	MaxLocalKeys int
}

// RateLimiter limits requests per client IP. Redis keeps a sliding window
// shared by every instance; when Redis is unavailable each instance falls
// back to a token bucket per IP.
type RateLimiter struct {
	config RateLimitConfig
	local  *lru.Cache
	mutex  sync.Mutex
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "vesselwatch:rate_limit"
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = "Rate limit exceeded"
	}
	if config.Requests <= 0 {
		config.Requests = 600
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.MaxLocalKeys <= 0 {
		config.MaxLocalKeys = 10000
	}

	local, _ := lru.New(config.MaxLocalKeys)
	return &RateLimiter{
		config: config,
		local:  local,
	}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:ip:%s", rl.config.KeyPrefix, c.ClientIP())

		allowed, remaining, resetTime := rl.Allow(c.Request.Context(), key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			rl.handleRateLimitExceeded(c, resetTime)
			return
		}
		c.Next()
	}
}

// Allow records one request for key and reports whether it fits the limit
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time) {
	if rl.config.Redis != nil {
		allowed, remaining, resetTime, err := rl.checkRedis(ctx, key)
		if err == nil {
			return allowed, remaining, resetTime
		}
		logrus.Debugf("Rate limit check via Redis failed, using local limiter: %v", err)
	}
	return rl.checkLocal(key)
}

// checkRedis applies a sliding window log kept in a sorted set
func (rl *RateLimiter) checkRedis(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	window := rl.config.Window
	member := fmt.Sprintf("%d", now.UnixNano())

	pipe := rl.config.Redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	current := count.Val()
	remaining := rl.config.Requests - int(current) - 1
	if remaining < 0 {
		remaining = 0
	}

	allowed := current < int64(rl.config.Requests)
	if !allowed {
		rl.config.Redis.ZRem(ctx, key, member)
	}
	return allowed, remaining, now.Add(window), nil
}

func (rl *RateLimiter) checkLocal(key string) (bool, int, time.Time) {
	rl.mutex.Lock()
	var limiter *rate.Limiter
	if v, ok := rl.local.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		every := rate.Every(rl.config.Window / time.Duration(rl.config.Requests))
		limiter = rate.NewLimiter(every, rl.config.Requests)
		rl.local.Add(key, limiter)
	}
	rl.mutex.Unlock()

	now := time.Now()
	allowed := limiter.AllowN(now, 1)
	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, now.Add(rl.config.Window)
}

func (rl *RateLimiter) handleRateLimitExceeded(c *gin.Context, resetTime time.Time) {
	retryAfter := int(time.Until(resetTime).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))

	logrus.WithFields(logrus.Fields{
		"client_ip":   c.ClientIP(),
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"retry_after": retryAfter,
	}).Warn("Rate limit exceeded")

	utils.ErrorResponse(c, http.StatusTooManyRequests, rl.config.ErrorMessage, gin.H{
		"retry_after": retryAfter,
		"reset_time":  resetTime.Unix(),
	})
	c.Abort()
}

func (rl *RateLimiter) shouldSkipPath(path string) bool {
	for _, skipPath := range rl.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware limits API calls per IP. Health checks and the
// websocket upgrade are not counted.
func RateLimitMiddleware(client *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:        client,
		Requests:     requests,
		Window:       window,
		ErrorMessage: "Too many requests. Please try again later.",
		SkipPaths:    []string{"/health", "/ws"},
	}).Middleware()
}
