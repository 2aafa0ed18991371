// Copyright 2016 Tamás Demeter-Haludka
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package powernap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)

const rateLimitMessage = "You have hit the rate limit. Don't worry it will reset soon."

// Per-request rate limiter. The counters are stored in redis.
type RateLimiter struct {
	ctx   context.Context
	rdb   redis.Cmdable
	cfg   *Config
	user  User
	ip    string
	token string
}

// Creates a rate limiter for the request. Without redis, the limiter never limits.
func NewRateLimiter(r *http.Request) *RateLimiter {
	rl := &RateLimiter{
		ctx:  r.Context(),
		cfg:  GetConfig(r),
		user: CurrentUser(r),
		ip:   RemoteAddr(r),
	}

	if rdb := GetRedis(r); rdb != nil {
		rl.rdb = rdb
	}

	if rl.user.IsAuthenticated() {
		rl.token = fmt.Sprintf("%s:%s:%s", UserType(rl.user), rl.user.GetID(), rl.ip)
	} else {
		rl.token = rl.ip
	}

	return rl
}

// The redis key of the counter.
func (rl *RateLimiter) Token() string {
	return rl.token
}

// The number of allowed requests in the expiration window.
func (rl *RateLimiter) Limit() int {
	if rl.user.IsAuthenticated() {
		return rl.cfg.AuthenticatedRequestsPerHour
	}

	return rl.cfg.RequestsPerHour
}

// Counts the request, and reports if the limit is exceeded.
func (rl *RateLimiter) IsRateLimited() (bool, error) {
	if rl.rdb == nil || rl.cfg.IsWhitelisted(net.ParseIP(rl.ip)) {
		return false, nil
	}

	return rl.overLimit()
}

func (rl *RateLimiter) overLimit() (bool, error) {
	requests, err := rl.rdb.Incr(rl.ctx, rl.token).Result()
	if err != nil {
		return false, err
	}

	if requests == 1 {
		if err := rl.rdb.Expire(rl.ctx, rl.token, rl.cfg.RateLimitExpirationDuration()).Err(); err != nil {
			return false, err
		}
	}

	if !rl.cfg.RateLimiting {
		return false, nil
	}

	return requests > int64(rl.Limit()), nil
}

// Returns the rate limit headers. Without redis there are no headers.
func (rl *RateLimiter) Headers() map[string]string {
	if rl.rdb == nil {
		return nil
	}

	limit := rl.Limit()

	used, err := rl.rdb.Get(rl.ctx, rl.token).Int()
	if err != nil && err != redis.Nil {
		return nil
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	reset := 0
	if ttl, err := rl.rdb.TTL(rl.ctx, rl.token).Result(); err == nil && ttl > 0 {
		reset = int(ttl.Seconds())
	}

	return map[string]string{
		RateLimitLimitHeader:     strconv.Itoa(limit),
		RateLimitRemainingHeader: strconv.Itoa(remaining),
		RateLimitResetHeader:     strconv.Itoa(reset),
	}
}

// Before request middleware that rejects the requests over the limit.
//
// Redis errors are logged, and the request is let through.
func CheckRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limited, err := NewRateLimiter(r).IsRateLimited()
		if err != nil {
			LogVerbose(r).Printf("rate limit check failed: %v\n", err)
		}
		if limited {
			Fail(RequestLimitError(rateLimitMessage))
		}

		next.ServeHTTP(w, r)
	})
}
