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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestModelHelpers(t *testing.T) {
	Convey("Given a database with a table", t, func() {
		db, err := NewTestDB()
		So(err, ShouldBeNil)
		So(db.AutoMigrate(&testWidget{}), ShouldBeNil)

		w := &testWidget{Name: "a", Owner: "1"}
		So(Create(db, w), ShouldBeNil)
		So(w.ID, ShouldEqual, 1)

		Convey("Exists should find the rows", func() {
			ok, err := Exists(db, &testWidget{}, map[string]interface{}{"name": "a"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = Exists(db, &testWidget{}, map[string]interface{}{"name": "b"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Save should update the row", func() {
			w.Name = "b"
			So(Save(db, w), ShouldBeNil)

			loaded := &testWidget{}
			So(db.First(loaded, w.ID).Error, ShouldBeNil)
			So(loaded.Name, ShouldEqual, "b")
		})

		Convey("GetOrCreate should create only missing rows", func() {
			out := &testWidget{}
			created, err := GetOrCreate(db, out, map[string]interface{}{"name": "a"})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(out.ID, ShouldEqual, 1)

			out = &testWidget{}
			created, err = GetOrCreate(db, out, map[string]interface{}{"name": "c"})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(out.ID, ShouldEqual, 2)
			So(out.Name, ShouldEqual, "c")
		})

		Convey("ConfirmOwner should compare the owner with the current user", func() {
			r := newContextRequest("GET", "/", nil)
			So(ConfirmOwner(WithUser(r, testUsers["user"]), w, false), ShouldBeTrue)

			r = newContextRequest("GET", "/", nil)
			So(ConfirmOwner(WithUser(r, testUsers["other"]), w, false), ShouldBeFalse)

			err := recoverError(func() { ConfirmOwner(r, w, true) })
			So(errors.Is(err, ErrOwner), ShouldBeTrue)

			So(ConfirmOwner(r, &testGadget{}, true), ShouldBeTrue)

			Convey("An instance without an owner should match nobody", func() {
				So(ConfirmOwner(WithUser(newContextRequest("GET", "/", nil), testUsers["user"]), &testWidget{}, false), ShouldBeFalse)
				So(ConfirmOwner(newContextRequest("GET", "/", nil), &testWidget{}, false), ShouldBeFalse)
			})
		})

		Convey("SafeDelete should only delete the objects of the owner", func() {
			r := SetContext(newContextRequest("DELETE", "/", nil), dbKey, db)

			err := recoverError(func() { SafeDelete(WithUser(r, testUsers["other"]), &testWidget{}, w.ID) })
			So(errors.Is(err, ErrOwner), ShouldBeTrue)

			r = SetContext(newContextRequest("DELETE", "/", nil), dbKey, db)
			So(recoverError(func() { SafeDelete(WithUser(r, testUsers["user"]), &testWidget{}, w.ID) }), ShouldBeNil)

			ok, err := Exists(db, &testWidget{}, map[string]interface{}{"id": w.ID})
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			err = recoverError(func() { SafeDelete(r, &testWidget{}, w.ID) })
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Database errors should be converted", func() {
			err := db.First(&testWidget{}, 99).Error
			So(errors.Is(ConvertDBError(err), ErrNotFound), ShouldBeTrue)
			So(ConvertDBError(nil), ShouldBeNil)
		})
	})
}
