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

/*
Request logging into the database.

The Logger is a service and an after-request middleware. Register it on the
server, then add Middleware to the AfterRequest list of an architect or a
blueprint. The entries are written by a background worker, and the entries
older than activity_log_expiration days are purged daily.
*/
package requestlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"github.com/tamasd/powernap"
	"github.com/tamasd/powernap/lib/log"
	"gorm.io/gorm"
)

const (
	anonymousUserType = "anonymous"
	undecodableBody   = "COULD NOT DECODE BYTE STRING RESPONSE TO UTF-8"
	maxURLLength      = 255
	queueSize         = 1024
)

var ErrNoDB = errors.New("the request logger requires a database")

type RequestLogEntry struct {
	ID            uint      `gorm:"primaryKey"`
	Anonymous     bool      `gorm:"not null;default:true"`
	Created       time.Time `gorm:"index"`
	URL           string    `gorm:"size:255;not null"`
	UserID        string    `gorm:"size:64;index"`
	UserType      string    `gorm:"size:64;not null"`
	RequestBody   string    `gorm:"type:text"`
	RequestMethod string    `gorm:"size:10;not null"`
	ResponseBody  string    `gorm:"type:text"`
	StatusCode    int       `gorm:"not null"`
}

func (RequestLogEntry) TableName() string {
	return "request_log_entries"
}

func (e RequestLogEntry) ApiResponse() interface{} {
	return map[string]interface{}{
		"id":             e.ID,
		"anonymous":      e.Anonymous,
		"created":        e.Created,
		"url":            e.URL,
		"user_id":        e.UserID,
		"user_type":      e.UserType,
		"request_body":   e.RequestBody,
		"request_method": e.RequestMethod,
		"response_body":  e.ResponseBody,
		"status_code":    e.StatusCode,
	}
}

var _ powernap.Service = &Logger{}

type Logger struct {
	// URL prefix of the API. It is removed from the path before the sensitive_endpoints lookup.
	Prefix string
	// Cron spec of the purge. Empty disables it.
	PurgeSchedule string

	db         *gorm.DB
	log        *log.Log
	expiration int
	entries    chan *RequestLogEntry
	wg         sync.WaitGroup
	cron       *cron.Cron
	mtx        sync.RWMutex
	closed     bool
}

func New(prefix string) *Logger {
	return &Logger{
		Prefix:        prefix,
		PurgeSchedule: "@daily",
		entries:       make(chan *RequestLogEntry, queueSize),
	}
}

func (l *Logger) Models() []interface{} {
	return []interface{}{&RequestLogEntry{}}
}

// Starts the worker and the purge schedule.
func (l *Logger) Register(s *powernap.Server) error {
	if s.DB == nil {
		return ErrNoDB
	}

	l.db = s.DB
	l.log = s.Logger
	l.expiration = s.Config.ActivityLogExpiration

	l.wg.Add(1)
	go l.work()

	if l.PurgeSchedule != "" {
		l.cron = cron.New()
		if _, err := l.cron.AddFunc(l.PurgeSchedule, l.purge); err != nil {
			return err
		}
		l.cron.Start()
	}

	return nil
}

func (l *Logger) work() {
	defer l.wg.Done()

	for e := range l.entries {
		if err := powernap.Create(l.db, e); err != nil {
			l.log.User().Printf("failed to save the request log entry of %s %s: %v\n", e.RequestMethod, e.URL, err)
		}
	}
}

func (l *Logger) purge() {
	n, err := PurgeOldLogs(l.db, l.expiration)
	if err != nil {
		l.log.User().Printf("failed to purge the request logs: %v\n", err)
		return
	}

	l.log.Verbose().Printf("purged %d request log entries\n", n)
}

// Stops the schedule, and waits until the queued entries are saved. Close is idempotent.
func (l *Logger) Close() error {
	l.mtx.Lock()
	if !l.closed {
		l.closed = true
		if l.cron != nil {
			<-l.cron.Stop().Done()
		}
		close(l.entries)
	}
	l.mtx.Unlock()
	l.wg.Wait()

	return nil
}

// Collects the request and the response, and queues the log entry.
func (l *Logger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = powernap.WithRequestState(r)

		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				powernap.LogVerbose(r).Printf("failed to read the request body: %v\n", err)
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		rec := powernap.NewResponseRecorder(w, true)

		next.ServeHTTP(rec, r)

		l.enqueue(r, l.newEntry(r, body, rec))
	})
}

// Entries that arrive after Close are dropped.
func (l *Logger) enqueue(r *http.Request, e *RequestLogEntry) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	if l.closed {
		powernap.LogVerbose(r).Printf("request logger is closed, dropping %s %s\n", e.RequestMethod, e.URL)
		return
	}

	select {
	case l.entries <- e:
	default:
		powernap.LogWarn(r).Printf("request log queue is full, dropping %s %s\n", e.RequestMethod, e.URL)
	}
}

func (l *Logger) newEntry(r *http.Request, body []byte, rec *powernap.ResponseRecorder) *RequestLogEntry {
	e := &RequestLogEntry{
		Anonymous:     true,
		Created:       time.Now().UTC(),
		URL:           requestURL(r),
		UserType:      anonymousUserType,
		RequestBody:   l.requestBody(r, body),
		RequestMethod: r.Method,
		StatusCode:    rec.StatusCode(),
	}

	if b := rec.Body(); utf8.Valid(b) {
		e.ResponseBody = string(b)
	} else {
		e.ResponseBody = undecodableBody
	}

	if u := powernap.CurrentUser(r); u.IsAuthenticated() {
		e.Anonymous = false
		e.UserID = u.GetID()
		e.UserType = powernap.UserType(u)
	}

	return e
}

func (l *Logger) requestBody(r *http.Request, body []byte) string {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		return string(body)
	}

	path := strings.TrimPrefix(r.URL.Path, l.Prefix)
	attrs := powernap.GetConfig(r).SensitiveEndpoints[path]
	if len(attrs) == 0 {
		return string(body)
	}

	return redact(body, attrs)
}

// Removes attributes from a JSON object. Anything else is returned unchanged.
func redact(body []byte, attrs []string) string {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body)
	}

	for _, attr := range attrs {
		delete(obj, attr)
	}

	redacted, err := json.Marshal(obj)
	if err != nil {
		return string(body)
	}

	return string(redacted)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	u := scheme + "://" + r.Host + r.URL.RequestURI()
	if len(u) > maxURLLength {
		u = u[:maxURLLength]
	}

	return u
}

// Deletes the entries that are older than days.
func PurgeOldLogs(db *gorm.DB, days int) (int64, error) {
	expiration := time.Now().UTC().AddDate(0, 0, -days)
	res := db.Where("created < ?", expiration).Delete(&RequestLogEntry{})

	return res.RowsAffected, res.Error
}
