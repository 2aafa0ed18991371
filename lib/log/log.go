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

// Leveled logger for powernap.
//
// Every Log has three levels. User messages always go to the log (server
// start, bad admin requests, loaded view modules). Verbose messages help when
// something is wrong with the API (rejected requests, error details). Trace
// messages are for debugging (stack traces, redis round trips).
package log

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/agtorre/gocolorize"
	"github.com/natefinch/lumberjack"
)

type LogLevel int8

const (
	LOG_USER LogLevel = iota
	LOG_VERBOSE
	LOG_TRACE
	LOG_OFF = -1
)

// Parses a level name (user, verbose, trace, off). Unknown names fall back to LOG_USER.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "verbose", "debug":
		return LOG_VERBOSE
	case "trace":
		return LOG_TRACE
	case "off":
		return LOG_OFF
	}

	return LOG_USER
}

type Logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

var (
	userPrefix    = ""
	warnPrefix    = gocolorize.NewColor("black+b:yellow").Paint("WARN") + " "
	verbosePrefix = gocolorize.NewColor("white+b:magenta").Paint("DEBUG") + " "
	tracePrefix   = gocolorize.NewColor("black+b:white").Paint("TRACE") + " "
)

func UserLogFactory(w io.Writer) Logger {
	return log.New(w, userPrefix, log.LstdFlags)
}

// Warnings are user level messages with a highlighted prefix.
func WarnLogFactory(w io.Writer) Logger {
	return log.New(w, warnPrefix, log.LstdFlags)
}

func VerboseLogFactory(w io.Writer) Logger {
	return log.New(w, verbosePrefix, log.Lshortfile)
}

func TraceLogFactory(w io.Writer) Logger {
	return log.New(w, tracePrefix, log.Ltime|log.Lmicroseconds|log.Lshortfile)
}

type Log struct {
	Level   LogLevel
	user    Logger
	warn    Logger
	verbose Logger
	trace   Logger
	empty   Logger
}

func NewLogger(user, warn, verbose, trace Logger) *Log {
	return &Log{
		user:    user,
		warn:    warn,
		verbose: verbose,
		trace:   trace,
		empty:   emptyLogger{},
	}
}

// Creates a Log with the recommended settings that writes to w.
func DefaultLogger(w io.Writer) *Log {
	return NewLogger(
		UserLogFactory(w),
		WarnLogFactory(w),
		VerboseLogFactory(w),
		TraceLogFactory(w),
	)
}

// Creates a Log with the recommended settings that writes to stdout.
func DefaultOSLogger() *Log {
	return DefaultLogger(os.Stdout)
}

// Returns a writer that appends to path and rotates the file.
//
// maxSize is in megabytes, maxAge is in days.
func RotatingFile(path string, maxSize, maxBackups, maxAge int) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}
}

// Creates a Log that writes both to stdout and to a rotating file.
func FileLogger(path string) *Log {
	return DefaultLogger(io.MultiWriter(os.Stdout, RotatingFile(path, 100, 5, 28)))
}

func (l *Log) User() Logger {
	if l.Level >= LOG_USER {
		return l.user
	}
	return l.empty
}

func (l *Log) Warn() Logger {
	if l.Level >= LOG_USER {
		return l.warn
	}
	return l.empty
}

func (l *Log) Verbose() Logger {
	if l.Level >= LOG_VERBOSE {
		return l.verbose
	}

	return l.empty
}

func (l *Log) Trace() Logger {
	if l.Level >= LOG_TRACE {
		return l.trace
	}

	return l.empty
}

func (l *Log) Fatalln(v ...interface{}) {
	l.user.Println(v...)
	os.Exit(1)
}

func (l *Log) Fatalf(format string, v ...interface{}) {
	l.user.Printf(format, v...)
	os.Exit(1)
}

var _ Logger = emptyLogger{}

type emptyLogger struct{}

func (e emptyLogger) Print(v ...interface{}) {
}

func (e emptyLogger) Printf(format string, v ...interface{}) {
}

func (e emptyLogger) Println(v ...interface{}) {
}
