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
	"fmt"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// A request handler that returns its data and the status code.
//
// The data is formatted by the format_ decorator. A view that writes the
// response itself returns nil and 0.
type View func(w http.ResponseWriter, r *http.Request) (interface{}, int)

// A named view wrapper.
//
// Route options with the same name as the decorator are passed to Wrap. The
// option is nil when the route does not set it, and the decorator uses its
// default then.
type Decorator struct {
	Name string
	Wrap func(v View, option interface{}) View
}

const (
	DecoratorFormat          = "format_"
	DecoratorSafe            = "safe"
	DecoratorPublic          = "public"
	DecoratorLogin           = "login"
	DecoratorNeedsPermission = "needs_permission"
)

// Policy of the safe decorator.
var SanitizePolicy = bluemonday.UGCPolicy()

const permissionMessage = "You have not been granted permission."

// The decorators of an architect without explicit decorators.
//
// The first decorator is the innermost, so the access checks run in the
// order public, login, needs_permission.
func DefaultDecorators() []Decorator {
	return []Decorator{
		FormatDecorator,
		SafeDecorator,
		NeedsPermissionDecorator,
		LoginDecorator,
		PublicDecorator,
	}
}

// Formats the view result into an *ApiResponse with the rate limit headers. Default: true.
var FormatDecorator = Decorator{
	Name: DecoratorFormat,
	Wrap: func(v View, option interface{}) View {
		if !BoolOption(option, true) {
			return v
		}

		return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			data, code := v(w, r)
			if code == 0 {
				Fail(fmt.Errorf("invalid response from %s: %T without a status code", r.URL.Path, data))
			}

			return NewApiResponse(r, data, code, NewRateLimiter(r).Headers()), code
		}
	},
}

// Sanitizes the strings of the response unless the route is safe. Default: false.
var SafeDecorator = Decorator{
	Name: DecoratorSafe,
	Wrap: func(v View, option interface{}) View {
		if BoolOption(option, false) {
			return v
		}

		return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			data, code := v(w, r)
			switch d := data.(type) {
			case *ApiResponse:
				if err := d.Sanitize(SanitizePolicy); err != nil {
					LogVerbose(r).Printf("failed to sanitize the response of %s: %v\n", r.URL.Path, err)
				}
			case string:
				data = SanitizePolicy.Sanitize(d)
			case map[string]interface{}, []interface{}:
				data = sanitizeValue(SanitizePolicy, d)
			}

			return data, code
		}
	},
}

// Hides the route from everyone but the admins unless it is public. Default: false.
//
// Hidden routes are 503 in debug mode and 404 otherwise.
var PublicDecorator = Decorator{
	Name: DecoratorPublic,
	Wrap: func(v View, option interface{}) View {
		if BoolOption(option, false) {
			return v
		}

		return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			if !CurrentUser(r).IsAdmin() {
				if GetConfig(r).Debug {
					Fail(ServiceUnavailableError(nil))
				}
				Fail(NotFoundError(nil))
			}

			return v(w, r)
		}
	},
}

// Requires an authenticated user. Default: true.
var LoginDecorator = Decorator{
	Name: DecoratorLogin,
	Wrap: func(v View, option interface{}) View {
		if !BoolOption(option, true) {
			return v
		}

		return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			if !CurrentUser(r).IsAuthenticated() {
				Fail(UnauthorizedError(nil))
			}

			return v(w, r)
		}
	},
}

// Requires permissions from non-admin users. Default: none.
//
// The option is a permission name, a list of permission names, or true
// (any permission).
var NeedsPermissionDecorator = Decorator{
	Name: DecoratorNeedsPermission,
	Wrap: func(v View, option interface{}) View {
		permissions, required := PermissionsOption(option)
		if !required {
			return v
		}

		return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			u := CurrentUser(r)
			if !u.IsAdmin() && !u.HasPermission(permissions...) {
				Fail(PermissionError(permissionMessage))
			}

			return v(w, r)
		}
	},
}

// Interprets a decorator option as a bool. Nil is the default.
func BoolOption(option interface{}, def bool) bool {
	switch o := option.(type) {
	case nil:
		return def
	case bool:
		return o
	case string:
		switch strings.ToLower(o) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no", "":
			return false
		}
	}

	return def
}

// Interprets a decorator option as a permission list.
func PermissionsOption(option interface{}) ([]string, bool) {
	switch o := option.(type) {
	case bool:
		return nil, o
	case string:
		if o == "" {
			return nil, false
		}
		return []string{o}, true
	case []string:
		return o, len(o) > 0
	case []interface{}:
		perms := make([]string, 0, len(o))
		for _, p := range o {
			perms = append(perms, fmt.Sprint(p))
		}
		return perms, len(perms) > 0
	}

	return nil, false
}

// Returns the names of the decorators.
func DecoratorNames(decorators []Decorator) []string {
	names := make([]string, len(decorators))
	for i, d := range decorators {
		names[i] = d.Name
	}

	return names
}
