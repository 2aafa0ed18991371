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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testUser struct {
	BaseUser
	Name string `json:"name"`
}

func newTestUser(id uint, admin bool, permissions ...string) *testUser {
	u := &testUser{Name: "user"}
	u.ID = id
	u.Admin = admin
	u.SetPermissions(permissions...)

	return u
}

// Tokens of the test users.
var testUsers = map[string]*testUser{
	"user":   newTestUser(1, false),
	"other":  newTestUser(2, false),
	"editor": newTestUser(3, false, "edit"),
	"admin":  newTestUser(4, true),
}

func testUserLoader(r *http.Request, token string) (User, error) {
	u, ok := testUsers[token]
	if !ok {
		return nil, nil
	}

	return u, nil
}

type testUserRepository struct{}

func (testUserRepository) LoadUser(ctx context.Context, id string) (User, error) {
	for _, u := range testUsers {
		if u.GetID() == id {
			return u, nil
		}
	}

	return nil, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return mr, rdb
}

// Prepares a request the way the server middlewares do.
func newContextRequest(method, target string, cfg *Config) *http.Request {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	r := httptest.NewRequest(method, target, nil)
	r = SetContext(r, configKey, cfg)
	r, _ = ensureState(r)

	return r
}

// Starts a test server with an architect. setup adds the routes.
func newTestApp(t *testing.T, cfg *Config, rdb redis.UniversalClient, setup func(a *Architect)) (*httptest.Server, *Server, *Architect) {
	db, err := NewTestDB()
	if err != nil {
		t.Fatal(err)
	}

	s := NewTestServer(cfg, db, rdb)
	a, err := NewArchitect(ArchitectConfig{
		UserLoader: testUserLoader,
	})
	if err != nil {
		t.Fatal(err)
	}

	setup(a)

	if err := a.InitApp(s); err != nil {
		t.Fatal(err)
	}

	return newHTTPTestServer(t, s), s, a
}

func newHTTPTestServer(t *testing.T, s *Server) *httptest.Server {
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return srv
}
