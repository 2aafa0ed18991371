// Copyright 2015 Tamás Demeter-Haludka
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

package auth

import (
	"net/http"

	"github.com/tamasd/powernap"
)

const invalidCredentialsMsg = "Invalid credentials."

// A user that logs in with a password.
type PasswordUser interface {
	powernap.User
	// Hash created by HashPassword().
	GetPasswordHash() string
}

// Finds a user by the login identifier. Returns nil without an error for unknown users.
type PasswordUserLookup func(r *http.Request, identifier string) (PasswordUser, error)

type PasswordLoginData struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Adds the token login (POST /auth/token) and logout (DELETE /auth/token) endpoints.
//
// The tokens are temporary redis tokens, so the architect of the blueprint
// should load the users with powernap.UserFromRedisTokenWrapper().
func RegisterTokenViews(bp *powernap.Blueprint, lookup PasswordUserLookup) {
	bp.Route("/auth/token", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		ld := PasswordLoginData{}
		powernap.MustDecode(r, &ld)

		rdb := powernap.GetRedis(r)
		if rdb == nil {
			powernap.Fail(powernap.ErrNoRedis)
		}

		u, err := lookup(r, ld.Identifier)
		powernap.MaybeFail(err)
		if u == nil || ld.Password == "" {
			powernap.Fail(powernap.UnauthorizedError(invalidCredentialsMsg))
		}

		ok, err := VerifyPassword(ld.Password, u.GetPasswordHash())
		if err != nil {
			powernap.LogVerbose(r).Printf("password verification failed for %s: %v\n", ld.Identifier, err)
		}
		if !ok {
			powernap.Fail(powernap.UnauthorizedError(invalidCredentialsMsg))
		}

		token, err := powernap.CreateTempToken(r.Context(), rdb, powernap.GetConfig(r), u, powernap.RemoteAddr(r))
		powernap.MaybeFail(err)

		var devices int64
		err = userScope(powernap.GetDB(r), u).Model(&TOTPDevice{}).Where("confirmed = ?", true).Count(&devices).Error
		powernap.MaybeFail(err)

		return map[string]interface{}{
			"token":        token,
			"otp_required": devices > 0,
		}, http.StatusCreated
	}, powernap.Endpoint("login"), powernap.Methods(http.MethodPost),
		powernap.Set(powernap.DecoratorPublic, true),
		powernap.Set(powernap.DecoratorLogin, false),
		powernap.Set(DecoratorOTP, false),
	)

	bp.Route("/auth/token", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		rdb := powernap.GetRedis(r)
		if rdb == nil {
			powernap.Fail(powernap.ErrNoRedis)
		}

		err := powernap.DeleteTempToken(r.Context(), rdb, powernap.GetConfig(r), powernap.AuthToken(r), powernap.CurrentUser(r))
		powernap.MaybeFail(err)

		return nil, http.StatusNoContent
	}, powernap.Endpoint("logout"), powernap.Methods(http.MethodDelete),
		powernap.Set(powernap.DecoratorPublic, true),
		powernap.Set(DecoratorOTP, false),
	)
}
