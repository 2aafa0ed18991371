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
	"net/http"

	"gorm.io/gorm"
)

// Models with an owner. The owner is compared to the id of the current user.
type Owned interface {
	OwnerID() string
}

// Inserts or updates a model.
func Save(db *gorm.DB, model interface{}) error {
	return db.Save(model).Error
}

// Inserts a model.
func Create(db *gorm.DB, model interface{}) error {
	return db.Create(model).Error
}

func Delete(db *gorm.DB, model interface{}) error {
	return db.Delete(model).Error
}

// Checks if a row matching the conditions exists.
//
// model is a pointer to the model struct, only its table matters.
func Exists(db *gorm.DB, model interface{}, conds map[string]interface{}) (bool, error) {
	var n int64
	err := db.Model(model).Where(conds).Limit(1).Count(&n).Error

	return n > 0, err
}

// Loads the first row matching the conditions into out, or creates it.
//
// The conditions are set on the created row.
func GetOrCreate(db *gorm.DB, out interface{}, conds map[string]interface{}) (created bool, err error) {
	err = db.Where(conds).First(out).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err = db.Where(conds).FirstOrCreate(out).Error; err != nil {
		return false, err
	}

	return true, nil
}

// Checks if the current user owns the instance. Types that do not implement Owned are not checked.
// An empty owner matches nobody.
//
// If throw is set, a mismatch fails with OwnerError.
func ConfirmOwner(r *http.Request, instance interface{}, throw bool) bool {
	o, ok := instance.(Owned)
	if !ok {
		return true
	}

	is := o.OwnerID() != "" && o.OwnerID() == CurrentUser(r).GetID()
	if !is && throw {
		Fail(OwnerError(nil))
	}

	return is
}

// Loads the instance by its primary key, confirms the owner and deletes it.
//
// out is a pointer to an empty model struct.
func SafeDelete(r *http.Request, out interface{}, id interface{}) {
	db := GetDB(r)

	err := db.First(out, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		Fail(NotFoundError(nil))
	}
	MaybeFail(err)

	ConfirmOwner(r, out, true)

	MaybeFail(ConvertDBError(Delete(db, out)))
}
