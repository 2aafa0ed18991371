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

package util

import (
	"encoding/hex"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEncDec(t *testing.T) {
	Convey("Given a random key", t, func() {
		key, err := RandomBytes(32)
		So(err, ShouldBeNil)
		So(SetKey(key), ShouldBeNil)
		So(KeySet(), ShouldBeTrue)

		Convey("A secret message should be encrypted and decrypted", func() {
			rawmsg, err := RandomBytes(4096)
			So(err, ShouldBeNil)
			msg := hex.EncodeToString(rawmsg)

			encrypted, err := EncryptString(msg)
			So(err, ShouldBeNil)
			So(encrypted, ShouldNotEqual, "")
			So(encrypted, ShouldNotEqual, msg)

			decrypted, err := DecryptString(encrypted)
			So(err, ShouldBeNil)
			So(decrypted, ShouldEqual, msg)
		})

		Convey("A tampered message should not be decrypted", func() {
			encrypted, err := Encrypt([]byte("secret"))
			So(err, ShouldBeNil)
			encrypted[len(encrypted)-1] ^= 0xff

			_, err = Decrypt(encrypted)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRandomBase32(t *testing.T) {
	Convey("Random base32 strings should be lowercase and unpadded", t, func() {
		s, err := RandomBase32(5)
		So(err, ShouldBeNil)
		So(len(s), ShouldEqual, 8)
		So(s, ShouldNotContainSubstring, "=")
		So(s, ShouldEqual, strings.ToLower(s))
	})
}

func TestStripTerminalColorCodes(t *testing.T) {
	Convey("Color codes should be removed", t, func() {
		So(StripTerminalColorCodes("\x1b[1;35mDEBUG\x1b[0m message"), ShouldEqual, "DEBUG message")
	})
}
