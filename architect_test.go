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
	"errors"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func helloView(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	return map[string]interface{}{"message": "hello"}, http.StatusOK
}

func htmlView(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	return map[string]interface{}{"html": `<b onclick="steal()">ok</b>`}, http.StatusOK
}

func itemView(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	return map[string]interface{}{"id": IntParam(r, "id")}, http.StatusOK
}

func setupPages(a *Architect) {
	bp := a.SubBlueprint("pages", "/pages", map[string]interface{}{
		DecoratorPublic: true,
		DecoratorLogin:  false,
		"bogus":         1,
	})

	bp.Route("/hello", helloView, Endpoint("hello"))
	bp.Route("/secret", helloView, Endpoint("secret"), Set(DecoratorLogin, true))
	bp.Route("/edit", helloView, Endpoint("edit"), Methods("GET", "post"), Set(DecoratorLogin, true), Set(DecoratorNeedsPermission, "edit"))
	bp.Route("/hidden", helloView, Endpoint("hidden"), Set(DecoratorPublic, false))
	bp.Route("/item/<int:id>", itemView)
	bp.Route("/html", htmlView, Endpoint("html"))
	bp.Route("/raw", htmlView, Endpoint("raw"), Set(DecoratorSafe, true))
	bp.Route("/zero", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		return nil, 0
	}, Endpoint("zero"))
	bp.Route("/unformatted", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		return "plain", http.StatusOK
	}, Endpoint("unformatted"), Set(DecoratorFormat, false), Set(DecoratorSafe, true))

	bp.AfterRequest(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-After", "1")
			next.ServeHTTP(w, r)
		})
	})
}

func TestArchitectRoutes(t *testing.T) {
	Convey("Given an architect with a blueprint", t, func() {
		srv, _, a := newTestApp(t, nil, nil, setupPages)
		tc := NewTestClientFor(srv)

		Convey("A public route should be available for everyone", func() {
			tc.Request("GET", "/api/v1/pages/hello", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{"message": "hello"})
			}, http.StatusOK)
		})

		Convey("Trailing slashes should not matter", func() {
			tc.Request("GET", "/api/v1/pages/hello/", nil, nil, nil, http.StatusOK)
		})

		Convey("A login route should reject anonymous users", func() {
			tc.Request("GET", "/api/v1/pages/secret", nil, nil, func(resp *http.Response) {
				So(resp.Header.Get("X-After"), ShouldEqual, "1")
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{
					"errors": []interface{}{"Unauthorized"},
				})
			}, http.StatusUnauthorized)

			tc.Token = "user"
			tc.Request("GET", "/api/v1/pages/secret", nil, nil, nil, http.StatusOK)
		})

		Convey("A route with a permission should check the permissions", func() {
			tc.Token = "user"
			tc.Request("GET", "/api/v1/pages/edit", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{
					"errors": []interface{}{"You have not been granted permission."},
				})
			}, http.StatusForbidden)

			tc.Token = "editor"
			tc.Request("POST", "/api/v1/pages/edit", nil, nil, nil, http.StatusOK)

			tc.Token = "admin"
			tc.Request("GET", "/api/v1/pages/edit", nil, nil, nil, http.StatusOK)
		})

		Convey("A non-public route should be hidden from non-admins", func() {
			tc.Request("GET", "/api/v1/pages/hidden", nil, nil, nil, http.StatusNotFound)

			tc.Token = "user"
			tc.Request("GET", "/api/v1/pages/hidden", nil, nil, nil, http.StatusNotFound)

			tc.Token = "admin"
			tc.Request("GET", "/api/v1/pages/hidden", nil, nil, nil, http.StatusOK)
		})

		Convey("Integer parameters should be checked", func() {
			tc.Request("GET", "/api/v1/pages/item/abc", nil, nil, nil, http.StatusNotFound)
			tc.Request("GET", "/api/v1/pages/item/5", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{"id": float64(5)})
			}, http.StatusOK)
		})

		Convey("Responses should be sanitized unless the route is safe", func() {
			tc.Request("GET", "/api/v1/pages/html", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{"html": "<b>ok</b>"})
			}, http.StatusOK)

			tc.Request("GET", "/api/v1/pages/raw", nil, nil, func(resp *http.Response) {
				tc.AssertJSON(resp, &map[string]interface{}{}, &map[string]interface{}{"html": `<b onclick="steal()">ok</b>`})
			}, http.StatusOK)
		})

		Convey("A view without a status code should be an error", func() {
			tc.Request("GET", "/api/v1/pages/zero", nil, nil, nil, http.StatusInternalServerError)
		})

		Convey("An unformatted view should be written as it is", func() {
			tc.Request("GET", "/api/v1/pages/unformatted", nil, nil, func(resp *http.Response) {
				So(tc.ReadBody(resp), ShouldEqual, "plain")
			}, http.StatusOK)
		})

		Convey("The links should contain the full URLs", func() {
			links := a.Links()
			So(links, ShouldHaveLength, 9)
			So(links[0].URL, ShouldEqual, "/api/v1/pages/hello")
			So(links[0].Endpoint, ShouldEqual, "hello")
			So(links[0].Methods, ShouldResemble, []string{"GET"})
			So(links[2].Methods, ShouldResemble, []string{"GET", "POST"})
			So(links[2].Options[DecoratorNeedsPermission], ShouldEqual, "edit")
			So(links[4].Endpoint, ShouldEqual, "itemView")
		})
	})

	Convey("Given an architect in debug mode", t, func() {
		cfg := DefaultConfig()
		cfg.Debug = true
		srv, _, _ := newTestApp(t, cfg, nil, setupPages)
		tc := NewTestClientFor(srv)

		Convey("A hidden route should be unavailable", func() {
			tc.Request("GET", "/api/v1/pages/hidden", nil, nil, nil, http.StatusServiceUnavailable)
		})
	})
}

func TestArchitectConfig(t *testing.T) {
	Convey("Given an architect configuration", t, func() {
		Convey("A user loader or a user repository is required", func() {
			_, err := NewArchitect(ArchitectConfig{})
			So(err, ShouldEqual, ErrNoUserLoader)

			_, err = NewArchitect(ArchitectConfig{Users: testUserRepository{}})
			So(err, ShouldBeNil)
		})

		Convey("The prefix should contain the version", func() {
			a, err := NewArchitect(ArchitectConfig{UserLoader: testUserLoader, Version: 3, Prefix: "/v{version}/x"})
			So(err, ShouldBeNil)
			So(a.Prefix(DefaultConfig()), ShouldEqual, "/v3/x")

			a, err = NewArchitect(ArchitectConfig{UserLoader: testUserLoader})
			So(err, ShouldBeNil)
			So(a.Prefix(DefaultConfig()), ShouldEqual, "/api/v1")
		})

		Convey("The default decorators should be used", func() {
			a, err := NewArchitect(ArchitectConfig{UserLoader: testUserLoader})
			So(err, ShouldBeNil)
			So(a.DecoratorNames(), ShouldResemble, []string{
				DecoratorFormat,
				DecoratorSafe,
				DecoratorNeedsPermission,
				DecoratorLogin,
				DecoratorPublic,
			})
		})

		Convey("Sub blueprints should only keep the decorator defaults", func() {
			a, err := NewArchitect(ArchitectConfig{UserLoader: testUserLoader})
			So(err, ShouldBeNil)
			bp := a.SubBlueprint("x", "/x", map[string]interface{}{
				DecoratorPublic: true,
				"bogus":         1,
			})
			So(bp.defaults, ShouldResemble, map[string]interface{}{DecoratorPublic: true})
			So(a.Blueprints(), ShouldHaveLength, 1)
		})
	})
}

func TestViewModules(t *testing.T) {
	Convey("Given registered view modules", t, func() {
		RegisterViewModule("modtest", "greeting", func(a *Architect) error {
			bp := a.SubBlueprint("greeting", "/greeting", map[string]interface{}{
				DecoratorPublic: true,
				DecoratorLogin:  false,
			})
			bp.Route("", helloView, Endpoint("greeting"))
			return nil
		})
		RegisterViewModule("modtest", "broken", func(a *Architect) error {
			return errors.New("broken")
		})

		Convey("A duplicate module should panic", func() {
			So(func() {
				RegisterViewModule("modtest", "greeting", func(a *Architect) error { return nil })
			}, ShouldPanic)
		})

		Convey("The modules should be loaded on registration", func() {
			db, err := NewTestDB()
			So(err, ShouldBeNil)
			s := NewTestServer(nil, db, nil)

			a, err := NewArchitect(ArchitectConfig{Name: "modtest", UserLoader: testUserLoader})
			So(err, ShouldBeNil)
			So(a.Register(s), ShouldBeNil)

			So(a.Blueprints(), ShouldHaveLength, 1)
			So(a.Links()[0].URL, ShouldEqual, "/api/v1/greeting")
		})

		Reset(func() {
			viewModulesMu.Lock()
			delete(viewModules, "modtest")
			viewModulesMu.Unlock()
		})
	})
}
