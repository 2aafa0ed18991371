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
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tamasd/powernap/util"
)

const hashTries = 100

var (
	ErrHashGeneration = errors.New("failed to generate a unique token")
	ErrNoRedis        = errors.New("redis is not configured")
)

// Temporary authentication token, stored as a redis hash.
type TempToken struct {
	Token        string
	UserID       string
	UserType     string
	IP           string
	OTP          bool
	Created      time.Time
	LastActivity time.Time
}

// Generates a random token that does not exist in redis yet.
func MakeHash(ctx context.Context, rdb redis.Cmdable) (string, error) {
	for i := 0; i < hashTries; i++ {
		b, err := util.RandomBytes(64)
		if err != nil {
			return "", err
		}

		sum := sha1.Sum(b)
		hash := hex.EncodeToString(sum[:])

		n, err := rdb.Exists(ctx, hash).Result()
		if err != nil {
			return "", err
		}
		if n == 0 {
			return hash, nil
		}
	}

	return "", ErrHashGeneration
}

// Key of the set that holds the active tokens of a user.
func ActiveTokensKey(prefix string, u User) string {
	return prefix + ":" + UserType(u) + ":" + u.GetID()
}

// Creates a temporary token for a user.
//
// The token is added to the active token set of the user, and expires after token_expire seconds.
func CreateTempToken(ctx context.Context, rdb redis.Cmdable, cfg *Config, u User, ip string) (string, error) {
	token, err := MakeHash(ctx, rdb)
	if err != nil {
		return "", err
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	expire := cfg.TokenExpireDuration()
	activeKey := ActiveTokensKey(cfg.ActiveTokensPrefix, u)

	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, token,
			"user_id", u.GetID(),
			"user_type", UserType(u),
			"ip", ip,
			"otp", "false",
			"created", now,
			"last_activity", now,
		)
		pipe.Expire(ctx, token, expire)
		pipe.SAdd(ctx, activeKey, token)
		pipe.Expire(ctx, activeKey, expire)
		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Loads a temporary token. Returns nil without an error if the token does not exist.
func RetrieveTempToken(ctx context.Context, rdb redis.Cmdable, token string) (*TempToken, error) {
	fields, err := rdb.HGetAll(ctx, token).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &TempToken{
		Token:        token,
		UserID:       fields["user_id"],
		UserType:     fields["user_type"],
		IP:           fields["ip"],
		OTP:          fields["otp"] == "true",
		Created:      parseUnix(fields["created"]),
		LastActivity: parseUnix(fields["last_activity"]),
	}, nil
}

// Deletes a temporary token, and removes it from the active token set of the user.
func DeleteTempToken(ctx context.Context, rdb redis.Cmdable, cfg *Config, token string, u User) error {
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, token)
		pipe.SRem(ctx, ActiveTokensKey(cfg.ActiveTokensPrefix, u), token)
		return nil
	})

	return err
}

// Returns the active tokens of a user.
func ActiveTokens(ctx context.Context, rdb redis.Cmdable, cfg *Config, u User) ([]string, error) {
	return rdb.SMembers(ctx, ActiveTokensKey(cfg.ActiveTokensPrefix, u)).Result()
}

// Returns a UserLoader that looks up the token in redis, and loads the user from the repository.
//
// Each successful lookup refreshes the last activity time of the token.
func UserFromRedisTokenWrapper(repo UserRepository) UserLoader {
	return func(r *http.Request, token string) (User, error) {
		rdb := GetRedis(r)
		if rdb == nil {
			return nil, ErrNoRedis
		}

		ctx := r.Context()
		tt, err := RetrieveTempToken(ctx, rdb, token)
		if err != nil || tt == nil {
			return nil, err
		}

		if err := rdb.HSet(ctx, token, "last_activity", strconv.FormatInt(time.Now().Unix(), 10)).Err(); err != nil {
			LogVerbose(r).Printf("failed to update the token activity: %v\n", err)
		}

		return repo.LoadUser(ctx, tt.UserID)
	}
}

// Returns the authentication token of the request.
func AuthToken(r *http.Request) string {
	return r.Header.Get(GetConfig(r).AuthHeader)
}

func parseUnix(s string) time.Time {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(i, 0)
}
