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
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tamasd/powernap/lib/log"
)

const RequestIDHeader = "X-Request-ID"

var defaultLog = log.DefaultOSLogger()

func DefaultLoggerMiddleware(level log.LogLevel) func(http.Handler) http.Handler {
	return LoggerMiddleware(
		level,
		log.UserLogFactory,
		log.WarnLogFactory,
		log.VerboseLogFactory,
		log.TraceLogFactory,
		os.Stdout,
	)
}

// Puts a per-request logger into the request context.
//
// Everything that is logged during the request is also collected into a buffer, see RequestLogs().
func LoggerMiddleware(level log.LogLevel, userLogFactory, warnLogFactory, verboseLogFactory, traceLogFactory func(w io.Writer) log.Logger, lw io.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := bytes.NewBuffer(nil)
			mw := io.MultiWriter(buf, lw)
			l := log.NewLogger(
				userLogFactory(mw),
				warnLogFactory(mw),
				verboseLogFactory(mw),
				traceLogFactory(mw),
			)
			l.Level = level

			r = SetContext(r, logKey, l)
			r = SetContext(r, logBufKey, buf)

			next.ServeHTTP(w, r)
		})
	}
}

// Logs one line per request: request id, method, path, status and duration.
//
// The request id is taken from the X-Request-ID header, or generated if missing, and it is sent back in the response.
func RequestLoggerMiddleware(lw io.Writer) func(http.Handler) http.Handler {
	l := log.UserLogFactory(lw)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(RequestIDHeader, id)
			}
			w.Header().Set(RequestIDHeader, id)

			rec := NewResponseRecorder(w, false)
			start := time.Now()

			next.ServeHTTP(rec, r)

			l.Printf("%s %s %s %d %s\n", id, r.Method, r.URL.RequestURI(), rec.StatusCode(), time.Since(start))
		})
	}
}

// Returns everything that was logged during the request.
func RequestLogs(r *http.Request) string {
	if buf, ok := r.Context().Value(logBufKey).(*bytes.Buffer); ok {
		return buf.String()
	}

	return ""
}

func logFromContext(r *http.Request) *log.Log {
	if l, ok := r.Context().Value(logKey).(*log.Log); ok {
		return l
	}

	return defaultLog
}

func LogUser(r *http.Request) log.Logger {
	return logFromContext(r).User()
}

func LogWarn(r *http.Request) log.Logger {
	return logFromContext(r).Warn()
}

func LogVerbose(r *http.Request) log.Logger {
	return logFromContext(r).Verbose()
}

func LogTrace(r *http.Request) log.Logger {
	return logFromContext(r).Trace()
}

// A ResponseWriter that remembers the status code, and optionally the body of the response.
type ResponseRecorder struct {
	http.ResponseWriter
	code        int
	captureBody bool
	body        *bytes.Buffer
}

func NewResponseRecorder(w http.ResponseWriter, captureBody bool) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		captureBody:    captureBody,
		body:           bytes.NewBuffer(nil),
	}
}

func (rr *ResponseRecorder) WriteHeader(code int) {
	if rr.code == 0 {
		rr.code = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	if rr.code == 0 {
		rr.code = http.StatusOK
	}
	if rr.captureBody {
		rr.body.Write(b)
	}
	return rr.ResponseWriter.Write(b)
}

// The status code of the response. 200 if nothing was written.
func (rr *ResponseRecorder) StatusCode() int {
	if rr.code == 0 {
		return http.StatusOK
	}
	return rr.code
}

// The captured body.
func (rr *ResponseRecorder) Body() []byte {
	return rr.body.Bytes()
}

func (rr *ResponseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rr *ResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacking is not supported")
}
