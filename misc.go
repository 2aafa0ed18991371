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

package powernap

import (
	"context"
	"net"
	"net/http"
	"strconv"
)

type contextKey int

const (
	paramKey contextKey = iota
	configKey
	dbKey
	redisKey
	stateKey
	logKey
	logBufKey
)

// Per-request mutable state. The pointer is stored in the request context,
// so values computed late (the current user, the parsed body) are visible to
// every middleware that sees the same context.
type requestState struct {
	body       []byte
	bodyRead   bool
	form       map[string]interface{}
	formParsed bool

	loader     RequestLoader
	user       User
	userLoaded bool
}

func getState(r *http.Request) *requestState {
	s, _ := r.Context().Value(stateKey).(*requestState)
	return s
}

// Makes sure that the request has a state, and returns the (possibly new) request.
func ensureState(r *http.Request) (*http.Request, *requestState) {
	if s := getState(r); s != nil {
		return r, s
	}

	s := &requestState{}
	return SetContext(r, stateKey, s), s
}

// Attaches the per-request state to the request. Middlewares that run before
// the login manager can call it to see the user of the request after the
// view returns.
func WithRequestState(r *http.Request) *http.Request {
	r, _ = ensureState(r)
	return r
}

func SetContext(r *http.Request, key, value interface{}) *http.Request {
	ctx := context.WithValue(r.Context(), key, value)
	return r.WithContext(ctx)
}

// Restricts access based on the IP address of the client. Only IP addresses in the given CIDR address ranges will be allowed.
//
// The address of the client is determined with RemoteAddr(), so trusted proxies are skipped.
func RestrictAddressMiddleware(addresses ...string) func(http.Handler) http.Handler {
	cidrnets, err := parseNetworks(addresses)
	if err != nil {
		panic(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !networksContain(cidrnets, net.ParseIP(RemoteAddr(r))) {
				Fail(NewApiError(http.StatusServiceUnavailable, nil))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func RestrictPrivateAddressMiddleware() func(http.Handler) http.Handler {
	return RestrictAddressMiddleware("10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8", "::1")
}

// Extracts the page and the page length from the query string.
//
// The parameter names come from the pagination_page and pagination_per_page
// configuration values. The page length is capped at max_per_page.
func Pager(r *http.Request) (page, perPage int) {
	cfg := GetConfig(r)
	q := r.URL.Query()

	page = 1
	if p := q.Get(cfg.PaginationPage); p != "" {
		pagenum, err := strconv.Atoi(p)
		if err != nil || pagenum < 1 {
			Fail(InvalidFormError(map[string]interface{}{
				"fields": map[string][]string{cfg.PaginationPage: {"Invalid page number."}},
			}))
		}
		page = pagenum
	}

	perPage = cfg.DefaultPerPage
	if pp := q.Get(cfg.PaginationPerPage); pp != "" {
		n, err := strconv.Atoi(pp)
		if err != nil || n < 1 {
			Fail(InvalidFormError(map[string]interface{}{
				"fields": map[string][]string{cfg.PaginationPerPage: {"Invalid page length."}},
			}))
		}
		perPage = n
	}

	if cfg.MaxPerPage > 0 && perPage > cfg.MaxPerPage {
		perPage = cfg.MaxPerPage
	}

	return page, perPage
}
