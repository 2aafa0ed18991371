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

package requestlog

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/tamasd/powernap"
)

type testUser struct {
	powernap.BaseUser
}

func testUserLoader(r *http.Request, token string) (powernap.User, error) {
	if token != "secret" {
		return nil, nil
	}

	u := &testUser{}
	u.ID = 7

	return u, nil
}

func TestRequestLog(t *testing.T) {
	Convey("Given a server with a request logger", t, func() {
		v := viper.New()
		v.Set("sensitive_endpoints", map[string]interface{}{
			"/login": []string{"password"},
		})
		cfg, err := powernap.LoadConfig(v)
		So(err, ShouldBeNil)

		db, err := powernap.NewTestDB()
		So(err, ShouldBeNil)

		s := powernap.NewTestServer(cfg, db, nil)
		l := New("/api/v1")
		So(s.RegisterService(l), ShouldBeNil)

		a, err := powernap.NewArchitect(powernap.ArchitectConfig{
			UserLoader:   testUserLoader,
			AfterRequest: []func(http.Handler) http.Handler{l.Middleware},
		})
		So(err, ShouldBeNil)

		bp := a.SubBlueprint("logged", "", map[string]interface{}{
			powernap.DecoratorPublic: true,
		})
		echo := func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			return powernap.JSONForm(r), http.StatusOK
		}
		bp.Route("/login", echo, powernap.Endpoint("login"), powernap.Methods("POST"), powernap.Set(powernap.DecoratorLogin, false))
		bp.Route("/echo", echo, powernap.Endpoint("echo"), powernap.Methods("POST"), powernap.Set(powernap.DecoratorLogin, false))
		bp.Route("/me", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			return map[string]interface{}{"id": powernap.CurrentUser(r).GetID()}, http.StatusOK
		}, powernap.Endpoint("me"))
		bp.Route("/shutdown", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
			powernap.MaybeFail(l.Close())
			return map[string]interface{}{"closed": true}, http.StatusOK
		}, powernap.Endpoint("shutdown"), powernap.Set(powernap.DecoratorLogin, false))
		So(a.InitApp(s), ShouldBeNil)

		srv := httptest.NewServer(s.Handler())
		defer srv.Close()
		tc := powernap.NewTestClientFor(srv)

		entries := func() []RequestLogEntry {
			So(l.Close(), ShouldBeNil)
			list := []RequestLogEntry{}
			So(db.Order("id").Find(&list).Error, ShouldBeNil)
			return list
		}

		Convey("Sensitive attributes should be removed", func() {
			tc.Request("POST", "/api/v1/login", strings.NewReader(`{"identifier":"a","password":"p"}`), nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{
					"identifier": "a",
					"password":   "p",
				})
			}, http.StatusOK)
			tc.Request("POST", "/api/v1/echo", strings.NewReader(`{"password":"p"}`), nil, nil, http.StatusOK)

			list := entries()
			So(list, ShouldHaveLength, 2)
			So(list[0].RequestBody, ShouldEqual, `{"identifier":"a"}`)
			So(list[0].RequestMethod, ShouldEqual, "POST")
			So(list[0].URL, ShouldEqual, srv.URL+"/api/v1/login")
			So(list[0].ResponseBody, ShouldContainSubstring, `"password":"p"`)
			So(list[1].RequestBody, ShouldEqual, `{"password":"p"}`)
		})

		Convey("The user should be recorded", func() {
			tc.Token = "secret"
			tc.Request("GET", "/api/v1/me?x=1", nil, nil, nil, http.StatusOK)

			list := entries()
			So(list, ShouldHaveLength, 1)
			So(list[0].Anonymous, ShouldBeFalse)
			So(list[0].UserID, ShouldEqual, "7")
			So(list[0].UserType, ShouldEqual, "testuser")
			So(list[0].StatusCode, ShouldEqual, http.StatusOK)
			So(list[0].URL, ShouldEndWith, "/api/v1/me?x=1")
		})

		Convey("Failed anonymous requests should be recorded", func() {
			tc.Request("GET", "/api/v1/me", nil, nil, nil, http.StatusUnauthorized)

			list := entries()
			So(list, ShouldHaveLength, 1)
			So(list[0].Anonymous, ShouldBeTrue)
			So(list[0].UserType, ShouldEqual, "anonymous")
			So(list[0].StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(list[0].ResponseBody, ShouldContainSubstring, "errors")
		})

		Convey("A request that finishes after Close should be served and dropped", func() {
			tc.Request("POST", "/api/v1/echo", strings.NewReader(`{"a":1}`), nil, nil, http.StatusOK)
			tc.Request("GET", "/api/v1/shutdown", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{
					"closed": true,
				})
			}, http.StatusOK)
			tc.Request("GET", "/api/v1/shutdown", nil, nil, nil, http.StatusOK)

			list := entries()
			So(list, ShouldHaveLength, 1)
			So(list[0].URL, ShouldEndWith, "/api/v1/echo")
		})

		Convey("Old entries should be purged", func() {
			So(l.Close(), ShouldBeNil)
			So(powernap.Create(db, &RequestLogEntry{Created: time.Now().UTC().AddDate(0, 0, -40), URL: "old", RequestMethod: "GET", UserType: "anonymous", StatusCode: 200}), ShouldBeNil)
			So(powernap.Create(db, &RequestLogEntry{Created: time.Now().UTC(), URL: "new", RequestMethod: "GET", UserType: "anonymous", StatusCode: 200}), ShouldBeNil)

			n, err := PurgeOldLogs(db, cfg.ActivityLogExpiration)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			list := []RequestLogEntry{}
			So(db.Find(&list).Error, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
			So(list[0].URL, ShouldEqual, "new")
		})
	})

	Convey("Given a server without a database", t, func() {
		s := powernap.NewTestServer(nil, nil, nil)

		Convey("The logger should not register", func() {
			So(s.RegisterService(New("")), ShouldEqual, ErrNoDB)
		})
	})

	Convey("Given a JSON body", t, func() {
		Convey("The attributes should be removed", func() {
			So(redact([]byte(`{"a":1,"b":{"c":2},"d":"e"}`), []string{"b", "x"}), ShouldEqual, `{"a":1,"d":"e"}`)
		})

		Convey("Other bodies should be unchanged", func() {
			So(redact([]byte(`[1,2]`), []string{"a"}), ShouldEqual, `[1,2]`)
			So(redact([]byte(`a=b`), []string{"a"}), ShouldEqual, `a=b`)
		})
	})
}
