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
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lib/pq"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tamasd/powernap/lib/log"
)

func TestApiError(t *testing.T) {
	Convey("Given the typed errors", t, func() {
		Convey("They should have the right status codes", func() {
			So(InvalidFormError(nil).Code, ShouldEqual, http.StatusBadRequest)
			So(InvalidJSONError(nil).Code, ShouldEqual, http.StatusBadRequest)
			So(InvalidDataFormatError(nil).Code, ShouldEqual, http.StatusBadRequest)
			So(OwnerError(nil).Code, ShouldEqual, http.StatusNotFound)
			So(PermissionError(nil).Code, ShouldEqual, http.StatusForbidden)
			So(RequestLimitError(nil).Code, ShouldEqual, http.StatusTooManyRequests)
			So(UnauthorizedError(nil).Code, ShouldEqual, http.StatusUnauthorized)
			So(UnauthorizedOTPError(nil).Code, ShouldEqual, http.StatusUnauthorized)
			So(NotFoundError(nil).Code, ShouldEqual, http.StatusNotFound)
			So(ServiceUnavailableError(nil).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("They should match by kind", func() {
			err := fmt.Errorf("wrapped: %w", OwnerError("x"))
			So(errors.Is(err, ErrOwner), ShouldBeTrue)
			So(errors.Is(err, ErrNotFound), ShouldBeFalse)
			So(errors.Is(UnauthorizedOTPError(nil), ErrUnauthorized), ShouldBeFalse)
			So(errors.Is(NewApiError(418, nil), NewApiError(418, "other")), ShouldBeTrue)
		})

		Convey("The body should be built from the description", func() {
			So(PermissionError(nil).Body(), ShouldResemble, map[string]interface{}{
				"errors": []interface{}{"Forbidden"},
			})
			So(PermissionError("no").Body(), ShouldResemble, map[string]interface{}{
				"errors": []interface{}{"no"},
			})
			fields := map[string]interface{}{"fields": map[string][]string{"a": {"b"}}}
			So(InvalidFormError(fields).Body(), ShouldResemble, fields)
			So(InvalidFormError(errors.New("e")).Body(), ShouldResemble, map[string]interface{}{
				"errors": []interface{}{"e"},
			})
		})

		Convey("The error message should describe the error", func() {
			So(NotFoundError(nil).Error(), ShouldEqual, "Not Found")
			So(NotFoundError("gone").Error(), ShouldEqual, "gone")
			So(InvalidFormError(map[string]interface{}{"a": 1}).Error(), ShouldEqual, `{"a":1}`)
		})
	})
}

func TestMaybeFail(t *testing.T) {
	Convey("Given errors", t, func() {
		Convey("A nil error should not fail", func() {
			So(func() { MaybeFail(nil) }, ShouldNotPanic)
		})

		Convey("An excluded error should not fail", func() {
			So(func() { MaybeFail(NotFoundError(nil), ErrNotFound) }, ShouldNotPanic)
		})

		Convey("Other errors should fail", func() {
			So(func() { MaybeFail(NotFoundError(nil), ErrOwner) }, ShouldPanic)
			So(func() { MaybeFail(errors.New("x")) }, ShouldPanic)
		})
	})
}

func TestErrorHandlerMiddleware(t *testing.T) {
	Convey("Given a handler behind the error handler", t, func() {
		logs := bytes.NewBuffer(nil)
		handler := func(f func()) http.Handler {
			return LoggerMiddleware(log.LOG_TRACE, log.UserLogFactory, log.WarnLogFactory, log.VerboseLogFactory, log.TraceLogFactory, logs)(
				ErrorHandlerMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					f()
				})),
			)
		}
		serve := func(h http.Handler) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newContextRequest("GET", "/", nil))
			return w
		}

		Convey("An API error should be written with its code", func() {
			w := serve(handler(func() { Fail(PermissionError("no")) }))
			So(w.Code, ShouldEqual, http.StatusForbidden)
			So(w.Body.String(), ShouldContainSubstring, `"no"`)
		})

		Convey("A database error should be an internal error with its details logged", func() {
			w := serve(handler(func() {
				Fail(fmt.Errorf("insert: %w", &pq.Error{
					Code:       "23503",
					Message:    "foreign key violation",
					Table:      "widgets",
					Constraint: "widgets_owner_fkey",
				}))
			}))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "widgets_owner_fkey")
			So(logs.String(), ShouldContainSubstring, "widgets_owner_fkey")
			So(logs.String(), ShouldContainSubstring, "23503")
		})
	})
}
