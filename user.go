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
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// The user of a request.
type User interface {
	GetID() string
	IsAuthenticated() bool
	IsAdmin() bool
	// Checks if the user has all of the given permissions. Without arguments it checks if the user has any permission.
	HasPermission(permissions ...string) bool
}

// Loads users by their id.
type UserRepository interface {
	LoadUser(ctx context.Context, id string) (User, error)
}

// Loads the user from a request. A nil user without an error is an anonymous request.
type RequestLoader func(r *http.Request) (User, error)

// Loads the user from an authentication token.
type UserLoader func(r *http.Request, token string) (User, error)

var _ User = AnonymousUser{}

type AnonymousUser struct{}

func (AnonymousUser) GetID() string                { return "" }
func (AnonymousUser) IsAuthenticated() bool        { return false }
func (AnonymousUser) IsAdmin() bool                { return false }
func (AnonymousUser) HasPermission(...string) bool { return false }

var _ User = &BaseUser{}

// An embeddable User implementation.
//
// Permissions are stored as a comma separated list, so the struct can be used as a gorm model.
type BaseUser struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Admin       bool   `json:"admin"`
	Permissions string `json:"-"`
}

func (u *BaseUser) GetID() string {
	if u.ID == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(u.ID), 10)
}

func (u *BaseUser) IsAuthenticated() bool {
	return u.ID != 0
}

func (u *BaseUser) IsAdmin() bool {
	return u.Admin
}

func (u *BaseUser) PermissionList() []string {
	list := []string{}
	for _, p := range strings.Split(u.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}

	return list
}

func (u *BaseUser) SetPermissions(permissions ...string) {
	u.Permissions = strings.Join(permissions, ",")
}

func (u *BaseUser) HasPermission(permissions ...string) bool {
	has := u.PermissionList()
	if len(permissions) == 0 {
		return len(has) > 0
	}

	for _, p := range permissions {
		if !containsString(has, p) {
			return false
		}
	}

	return true
}

// Returns the type name of a user. It is used in rate limiting and token keys.
func UserType(u User) string {
	t := reflect.TypeOf(u)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return strings.ToLower(t.Name())
}

// Handles the user loading of the requests.
type LoginManager struct {
	loader RequestLoader
}

func NewLoginManager() *LoginManager {
	return &LoginManager{}
}

// Sets the function that loads the user from the request.
func (lm *LoginManager) RequestLoader(loader RequestLoader) {
	lm.loader = loader
}

func (lm *LoginManager) HasLoader() bool {
	return lm.loader != nil
}

// Installs the request loader. The user is loaded lazily, when CurrentUser() is called first.
func (lm *LoginManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, state := ensureState(r)
		if !state.userLoaded {
			state.loader = lm.loader
		}

		next.ServeHTTP(w, r)
	})
}

// Returns the user of the request. Returns AnonymousUser if nobody is logged in.
func CurrentUser(r *http.Request) User {
	state := getState(r)
	if state == nil {
		return AnonymousUser{}
	}

	if !state.userLoaded {
		state.userLoaded = true
		if state.loader != nil {
			u, err := state.loader(r)
			if err != nil {
				LogVerbose(r).Printf("failed to load the user: %v\n", err)
			}
			if u != nil && !isNilUser(u) {
				state.user = u
			}
		}
	}

	if state.user == nil {
		return AnonymousUser{}
	}

	return state.user
}

// Sets the user of the request directly. Useful for tests and for custom authentication middlewares.
func WithUser(r *http.Request, u User) *http.Request {
	r, state := ensureState(r)
	state.user = u
	state.userLoaded = true

	return r
}

// Wraps a token based UserLoader, so it reads the token from the auth_header header.
//
// Requests without the header are anonymous.
func RequestUserWrapper(loader UserLoader) RequestLoader {
	return func(r *http.Request) (User, error) {
		token := r.Header.Get(GetConfig(r).AuthHeader)
		if token == "" {
			return nil, nil
		}

		return loader(r, token)
	}
}

func isNilUser(u User) bool {
	v := reflect.ValueOf(u)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
