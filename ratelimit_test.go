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
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func rateLimitConfig(values map[string]interface{}) *Config {
	v := viper.New()
	v.Set("requests_per_hour", 2)
	v.Set("authenticated_requests_per_hour", 3)
	for k, val := range values {
		v.Set(k, val)
	}

	cfg, err := LoadConfig(v)
	if err != nil {
		panic(err)
	}

	return cfg
}

func setupRateLimited(a *Architect) {
	bp := a.SubBlueprint("limited", "", map[string]interface{}{
		DecoratorPublic: true,
		DecoratorLogin:  false,
	})
	bp.Route("/limited", helloView, Endpoint("limited"))
}

func TestRateLimiter(t *testing.T) {
	Convey("Given a request with redis", t, func() {
		mr, rdb := newTestRedis(t)
		cfg := rateLimitConfig(nil)
		r := newContextRequest("GET", "/", cfg)
		r = SetContext(r, redisKey, rdb)

		Convey("The anonymous token should be the address", func() {
			rl := NewRateLimiter(r)
			So(rl.Token(), ShouldEqual, "192.0.2.1")
			So(rl.Limit(), ShouldEqual, 2)
		})

		Convey("The authenticated token should contain the user", func() {
			rl := NewRateLimiter(WithUser(r, testUsers["user"]))
			So(rl.Token(), ShouldEqual, "testuser:1:192.0.2.1")
			So(rl.Limit(), ShouldEqual, 3)
		})

		Convey("The counter should expire", func() {
			rl := NewRateLimiter(r)
			limited, err := rl.IsRateLimited()
			So(err, ShouldBeNil)
			So(limited, ShouldBeFalse)
			So(mr.TTL("192.0.2.1"), ShouldEqual, cfg.RateLimitExpirationDuration())

			limited, _ = rl.IsRateLimited()
			So(limited, ShouldBeFalse)
			limited, _ = rl.IsRateLimited()
			So(limited, ShouldBeTrue)

			h := rl.Headers()
			So(h[RateLimitLimitHeader], ShouldEqual, "2")
			So(h[RateLimitRemainingHeader], ShouldEqual, "0")
			So(h[RateLimitResetHeader], ShouldEqual, "3600")
		})

		Convey("Without redis nothing should be limited", func() {
			rl := NewRateLimiter(newContextRequest("GET", "/", cfg))
			limited, err := rl.IsRateLimited()
			So(err, ShouldBeNil)
			So(limited, ShouldBeFalse)
			So(rl.Headers(), ShouldBeNil)
		})
	})

	Convey("Given a whitelisted address", t, func() {
		_, rdb := newTestRedis(t)
		cfg := rateLimitConfig(map[string]interface{}{
			"rate_limit_whitelist": []string{"192.0.2.0/24"},
		})
		r := SetContext(newContextRequest("GET", "/", cfg), redisKey, rdb)

		Convey("It should never be limited", func() {
			rl := NewRateLimiter(r)
			for i := 0; i < 5; i++ {
				limited, err := rl.IsRateLimited()
				So(err, ShouldBeNil)
				So(limited, ShouldBeFalse)
			}
		})
	})

	Convey("Given disabled rate limiting", t, func() {
		mr, rdb := newTestRedis(t)
		cfg := rateLimitConfig(map[string]interface{}{
			"rate_limiting": false,
		})
		r := SetContext(newContextRequest("GET", "/", cfg), redisKey, rdb)

		Convey("The requests should be counted but not limited", func() {
			rl := NewRateLimiter(r)
			for i := 0; i < 5; i++ {
				limited, _ := rl.IsRateLimited()
				So(limited, ShouldBeFalse)
			}
			v, err := mr.Get("192.0.2.1")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "5")
		})
	})
}

func TestCheckRateLimit(t *testing.T) {
	Convey("Given a rate limited endpoint", t, func() {
		_, rdb := newTestRedis(t)
		srv, _, _ := newTestApp(t, rateLimitConfig(nil), rdb, setupRateLimited)
		tc := NewTestClientFor(srv)

		Convey("The requests over the limit should be rejected", func() {
			tc.Request("GET", "/api/v1/limited", nil, nil, func(resp *http.Response) {
				So(resp.Header.Get(RateLimitLimitHeader), ShouldEqual, "2")
				So(resp.Header.Get(RateLimitRemainingHeader), ShouldEqual, "1")
			}, http.StatusOK)
			tc.Request("GET", "/api/v1/limited", nil, nil, nil, http.StatusOK)
			tc.Request("GET", "/api/v1/limited", nil, nil, func(resp *http.Response) {
				So(resp.Header.Get(RateLimitRemainingHeader), ShouldEqual, "0")
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{
					"errors": []interface{}{"You have hit the rate limit. Don't worry it will reset soon."},
				})
			}, http.StatusTooManyRequests)
		})

		Convey("Authenticated users should have their own counter", func() {
			tc.Request("GET", "/api/v1/limited", nil, nil, nil, http.StatusOK)
			tc.Request("GET", "/api/v1/limited", nil, nil, nil, http.StatusOK)

			tc.Token = "user"
			tc.Request("GET", "/api/v1/limited", nil, nil, func(resp *http.Response) {
				So(resp.Header.Get(RateLimitLimitHeader), ShouldEqual, "3")
			}, http.StatusOK)
		})
	})
}
