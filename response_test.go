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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/tamasd/powernap/lib/log"
)

type testResponder struct {
	Name   string
	Secret string
}

func (t testResponder) ApiResponse() interface{} {
	return map[string]interface{}{"name": t.Name}
}

type testArticle struct {
	Title string `json:"title"`
	Tags  []string
}

func TestApiResponse(t *testing.T) {
	Convey("Given a request", t, func() {
		v := viper.New()
		v.Set("base_url", "http://example.com/")
		cfg, err := LoadConfig(v)
		So(err, ShouldBeNil)
		r := newContextRequest("GET", "/items?sort=name", cfg)

		Convey("ApiResponders should be converted", func() {
			res := NewApiResponse(r, testResponder{"a", "s"}, http.StatusOK, nil)
			So(res.Results, ShouldResemble, map[string]interface{}{"name": "a"})

			res = NewApiResponse(r, []testResponder{{"a", "s"}, {"b", "s"}}, http.StatusOK, nil)
			So(res.Results, ShouldResemble, []interface{}{
				map[string]interface{}{"name": "a"},
				map[string]interface{}{"name": "b"},
			})
		})

		Convey("Errors should not be converted", func() {
			res := NewApiResponse(r, testResponder{"a", "s"}, http.StatusBadRequest, nil)
			So(res.Results, ShouldResemble, testResponder{"a", "s"})
		})

		Convey("A page should have a Link header", func() {
			res := NewApiResponse(r, Pagination{
				Items:   []testResponder{{"c", ""}, {"d", ""}},
				Page:    2,
				PerPage: 2,
				Total:   5,
			}, http.StatusOK, map[string]string{RateLimitLimitHeader: "10"})

			So(res.Results, ShouldHaveLength, 2)
			So(res.Pagination, ShouldResemble, &PaginationParams{
				First:   1,
				Last:    3,
				Prev:    1,
				Next:    3,
				PerPage: 2,
				Total:   5,
			})
			So(res.Headers.Get(RateLimitLimitHeader), ShouldEqual, "10")
			So(res.Headers.Get("Link"), ShouldEqual,
				`<http://example.com/items?page=1&per_page=2&sort=name>; rel="first", `+
					`<http://example.com/items?page=1&per_page=2&sort=name>; rel="prev", `+
					`<http://example.com/items?page=3&per_page=2&sort=name>; rel="next", `+
					`<http://example.com/items?page=3&per_page=2&sort=name>; rel="last"`)
		})

		Convey("An empty page should have one page", func() {
			p := Pagination{Items: []testResponder{}, Page: 1, PerPage: 10}
			So(p.Pages(), ShouldEqual, 0)
			So(p.Params().Last, ShouldEqual, 1)
			So(p.Params().Next, ShouldEqual, 1)
		})

		Convey("Strings should be sanitized", func() {
			res := NewApiResponse(r, testArticle{
				Title: `<b onclick="alert(1)">x</b>`,
				Tags:  []string{"<script>alert(1)</script>ok"},
			}, http.StatusOK, nil)
			So(res.Sanitize(SanitizePolicy), ShouldBeNil)
			So(res.Results, ShouldResemble, map[string]interface{}{
				"title": "<b>x</b>",
				"Tags":  []interface{}{"ok"},
			})
		})

		Convey("No content should be written without a body", func() {
			w := httptest.NewRecorder()
			NewApiResponse(r, nil, http.StatusNoContent, nil).Write(w, r)
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Body.Len(), ShouldEqual, 0)

			w = httptest.NewRecorder()
			NewApiResponse(r, nil, http.StatusAccepted, nil).Write(w, r)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Body.Len(), ShouldEqual, 0)
		})

		Convey("The results should be written as JSON", func() {
			w := httptest.NewRecorder()
			NewApiResponse(r, map[string]interface{}{"a": 1}, http.StatusCreated, nil).Write(w, r)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json")
			So(w.Body.String(), ShouldEqual, `{"a":1}`)
		})
	})

	Convey("Given a bad request from an admin", t, func() {
		var logs string
		handler := LoggerMiddleware(log.LOG_USER, log.UserLogFactory, log.WarnLogFactory, log.VerboseLogFactory, log.TraceLogFactory, io.Discard)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r = WithUser(r, testUsers["admin"])
				NewApiResponse(r, map[string]interface{}{"errors": []string{"bad"}}, http.StatusBadRequest, nil)
				logs = RequestLogs(r)
			}))

		handler.ServeHTTP(httptest.NewRecorder(), newContextRequest("POST", "/things", nil))

		Convey("It should be logged", func() {
			So(logs, ShouldContainSubstring, "Bad Admin Request to '/things'")
		})
	})
}
