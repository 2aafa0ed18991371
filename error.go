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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/lib/pq"
	"github.com/tamasd/powernap/util"
)

// Kinds of API errors. Two errors with the same kind match with errors.Is().
type ErrorKind string

const (
	KindGeneric            ErrorKind = ""
	KindInvalidForm        ErrorKind = "invalid_form"
	KindInvalidJSON        ErrorKind = "invalid_json"
	KindInvalidDataFormat  ErrorKind = "invalid_data_format"
	KindOwner              ErrorKind = "owner"
	KindPermission         ErrorKind = "permission"
	KindRequestLimit       ErrorKind = "request_limit"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindUnauthorizedOTP    ErrorKind = "unauthorized_otp"
	KindNotFound           ErrorKind = "not_found"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// An error that is sent to the client.
//
// Description is either a string or something JSON serializable. When it is
// a map, it becomes the response body as it is. Otherwise the body is
// {"errors": [Description]}.
type ApiError struct {
	Kind        ErrorKind
	Code        int
	Description interface{}
}

// Sentinel errors for errors.Is().
var (
	ErrInvalidForm        = &ApiError{Kind: KindInvalidForm}
	ErrInvalidJSON        = &ApiError{Kind: KindInvalidJSON}
	ErrInvalidDataFormat  = &ApiError{Kind: KindInvalidDataFormat}
	ErrOwner              = &ApiError{Kind: KindOwner}
	ErrPermission         = &ApiError{Kind: KindPermission}
	ErrRequestLimit       = &ApiError{Kind: KindRequestLimit}
	ErrUnauthorized       = &ApiError{Kind: KindUnauthorized}
	ErrUnauthorizedOTP    = &ApiError{Kind: KindUnauthorizedOTP}
	ErrNotFound           = &ApiError{Kind: KindNotFound}
	ErrServiceUnavailable = &ApiError{Kind: KindServiceUnavailable}
)

func NewApiError(code int, description interface{}) *ApiError {
	return &ApiError{
		Code:        code,
		Description: description,
	}
}

func newKindError(kind ErrorKind, code int, description interface{}) *ApiError {
	return &ApiError{
		Kind:        kind,
		Code:        code,
		Description: description,
	}
}

func (e *ApiError) Error() string {
	switch d := e.Description.(type) {
	case nil:
		return http.StatusText(e.Code)
	case string:
		return d
	case error:
		return d.Error()
	}

	b, err := json.Marshal(e.Description)
	if err != nil {
		return fmt.Sprint(e.Description)
	}

	return string(b)
}

func (e *ApiError) Is(target error) bool {
	t, ok := target.(*ApiError)
	if !ok {
		return false
	}

	if t.Kind != KindGeneric {
		return t.Kind == e.Kind
	}

	return t.Code == e.Code
}

// Returns the response body of the error.
func (e *ApiError) Body() interface{} {
	switch d := e.Description.(type) {
	case map[string]interface{}, map[string]string, map[string][]string:
		return d
	case nil:
		return map[string]interface{}{"errors": []interface{}{http.StatusText(e.Code)}}
	case error:
		return map[string]interface{}{"errors": []interface{}{d.Error()}}
	}

	return map[string]interface{}{"errors": []interface{}{e.Description}}
}

func InvalidFormError(description interface{}) *ApiError {
	return newKindError(KindInvalidForm, http.StatusBadRequest, description)
}

func InvalidJSONError(description interface{}) *ApiError {
	return newKindError(KindInvalidJSON, http.StatusBadRequest, description)
}

func InvalidDataFormatError(description interface{}) *ApiError {
	return newKindError(KindInvalidDataFormat, http.StatusBadRequest, description)
}

// The owner of an object does not match the current user. The status code is 404.
func OwnerError(description interface{}) *ApiError {
	return newKindError(KindOwner, http.StatusNotFound, description)
}

func PermissionError(description interface{}) *ApiError {
	return newKindError(KindPermission, http.StatusForbidden, description)
}

func RequestLimitError(description interface{}) *ApiError {
	return newKindError(KindRequestLimit, http.StatusTooManyRequests, description)
}

func UnauthorizedError(description interface{}) *ApiError {
	return newKindError(KindUnauthorized, http.StatusUnauthorized, description)
}

func UnauthorizedOTPError(description interface{}) *ApiError {
	return newKindError(KindUnauthorizedOTP, http.StatusUnauthorized, description)
}

func NotFoundError(description interface{}) *ApiError {
	return newKindError(KindNotFound, http.StatusNotFound, description)
}

func ServiceUnavailableError(description interface{}) *ApiError {
	return newKindError(KindServiceUnavailable, http.StatusServiceUnavailable, description)
}

// Writes the error to the response.
//
// The body goes through the same path as the responses of the views, so the rate limit headers are included.
func WriteError(w http.ResponseWriter, r *http.Request, e *ApiError) {
	NewApiResponse(r, e.Body(), e.Code, NewRateLimiter(r).Headers()).Write(w, r)
}

// Error handler middleware. It recovers from the panics of the following handlers, and writes the error to the response.
//
// An *ApiError is written as it is. Everything else is an internal server error. The displayErrors flag puts the error message into the response. This is useful in a development environment.
func ErrorHandlerMiddleware(displayErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var apiErr *ApiError
				err, ok := rec.(error)
				if !ok {
					err = errors.New(fmt.Sprint(rec))
				}

				if !errors.As(err, &apiErr) {
					stackTrace := make([]byte, 8192)
					n := runtime.Stack(stackTrace, false)

					LogUser(r).Printf("internal error on %s %s: %v\n", r.Method, r.URL.Path, err)
					LogTrace(r).Println(strings.TrimRight(string(stackTrace[:n]), "\x00"))
					var pqErr *pq.Error
					if errors.As(err, &pqErr) {
						LogTrace(r).Println(DBErrorToVerboseString(pqErr))
					}
					if displayErrors {
						LogTrace(r).Println(util.StripTerminalColorCodes(RequestLogs(r)))
					}

					var description interface{}
					if displayErrors {
						description = err.Error()
					}
					apiErr = NewApiError(http.StatusInternalServerError, description)
				} else {
					LogVerbose(r).Printf("%d %s: %s\n", apiErr.Code, r.URL.Path, apiErr.Error())
				}

				WriteError(w, r, apiErr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Aborts the request with err. Use it only inside handlers behind the ErrorHandlerMiddleware.
func Fail(err error) {
	panic(err)
}

// Calls Fail() if err is not nil and not any of excludedErrors.
func MaybeFail(err error, excludedErrors ...error) {
	if err == nil {
		return
	}

	for _, e := range excludedErrors {
		if errors.Is(err, e) {
			return
		}
	}

	Fail(err)
}

// Handler for the unknown routes.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Fail(NotFoundError("The requested URL was not found on the server. If you entered the URL manually please check your spelling and try again."))
	})
}

func methodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Fail(NewApiError(http.StatusMethodNotAllowed, "The method is not allowed for the requested URL."))
	})
}
