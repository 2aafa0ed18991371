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

package log

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLevels(t *testing.T) {
	Convey("Given a logger writing into a buffer", t, func() {
		buf := bytes.NewBuffer(nil)
		l := DefaultLogger(buf)

		Convey("The user level should only print user messages", func() {
			l.Level = LOG_USER
			l.User().Println("user")
			l.Verbose().Println("verbose")
			l.Trace().Println("trace")

			So(buf.String(), ShouldContainSubstring, "user")
			So(buf.String(), ShouldNotContainSubstring, "verbose")
			So(buf.String(), ShouldNotContainSubstring, "trace")
		})

		Convey("The trace level should print everything", func() {
			l.Level = LOG_TRACE
			l.Verbose().Println("verbose")
			l.Trace().Println("trace")
			l.Warn().Println("warning")

			So(buf.String(), ShouldContainSubstring, "verbose")
			So(buf.String(), ShouldContainSubstring, "trace")
			So(buf.String(), ShouldContainSubstring, "warning")
		})

		Convey("The off level should print nothing", func() {
			l.Level = LOG_OFF
			l.User().Println("user")
			l.Warn().Println("warning")

			So(buf.Len(), ShouldEqual, 0)
		})
	})
}

func TestParseLevel(t *testing.T) {
	Convey("Level names should be parsed", t, func() {
		So(ParseLevel("trace"), ShouldEqual, LOG_TRACE)
		So(ParseLevel("DEBUG"), ShouldEqual, LOG_VERBOSE)
		So(ParseLevel("verbose"), ShouldEqual, LOG_VERBOSE)
		So(ParseLevel("off"), ShouldEqual, LogLevel(LOG_OFF))
		So(ParseLevel("whatever"), ShouldEqual, LOG_USER)
	})
}
