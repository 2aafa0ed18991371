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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tamasd/powernap/lib/log"
	"github.com/tamasd/powernap/util"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBCounter int64

// Opens a new, empty in-memory SQLite database. Every call returns a different database.
func NewTestDB() (*gorm.DB, error) {
	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:powernaptest%d?mode=memory&cache=shared", n)

	db, err := OpenGorm(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}

	conn, err := db.DB()
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	return db, nil
}

// Creates a server with the middlewares of Nap(), but without connecting to anything and without output.
//
// cfg can be nil, db and rdb are optional.
func NewTestServer(cfg *Config, db *gorm.DB, rdb redis.UniversalClient) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := NewServer(cfg, db, rdb)
	s.Logger = log.DefaultLogger(io.Discard)
	s.Logger.Level = log.LOG_OFF

	s.Use(RequestLoggerMiddleware(io.Discard))
	s.Use(LoggerMiddleware(log.LOG_OFF, log.UserLogFactory, log.WarnLogFactory, log.VerboseLogFactory, log.TraceLogFactory, io.Discard))
	s.Use(s.ContextMiddleware)
	s.Use(ErrorHandlerMiddleware(cfg.Debug))

	return s
}

// HTTP client for the tests of an API.
type TestClient struct {
	Client *http.Client
	// Sent in the auth header when not empty.
	Token      string
	AuthHeader string
	base       string
}

func NewTestClient(base string) *TestClient {
	return &TestClient{
		Client:     &http.Client{},
		AuthHeader: defaultConfig.AuthHeader,
		base:       base,
	}
}

// Creates a client for a httptest server.
func NewTestClientFor(srv *httptest.Server) *TestClient {
	c := NewTestClient(srv.URL)
	c.Client = srv.Client()
	return c
}

func (tc *TestClient) Request(method, endpoint string, body io.Reader, processReq func(*http.Request), processResp func(*http.Response), statusCode int) {
	req, _ := http.NewRequest(method, tc.base+endpoint, body)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if tc.Token != "" {
		req.Header.Set(tc.AuthHeader, tc.Token)
	}
	if processReq != nil {
		processReq(req)
	}

	resp, err := tc.Client.Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	So(resp.StatusCode, ShouldEqual, statusCode)
	if processResp != nil {
		processResp(resp)
	}
}

func (tc *TestClient) JSONBuffer(v interface{}) io.Reader {
	buf := bytes.NewBuffer(nil)
	So(json.NewEncoder(buf).Encode(v), ShouldBeNil)
	return buf
}

func (tc *TestClient) AssertJSON(resp *http.Response, v, d interface{}) {
	So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
	So(v, ShouldResemble, d)
}

// Decodes the response body into v.
func (tc *TestClient) ReadJSON(resp *http.Response, v interface{}) {
	So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
}

func (tc *TestClient) ReadBody(resp *http.Response) string {
	return util.ResponseBodyToString(resp)
}
