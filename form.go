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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Validates request data, and creates or updates a model instance from it.
type Form interface {
	Validate() bool
	FormatErrors() map[string]interface{}
	CreateObj(db *gorm.DB) (interface{}, error)
	UpdateObj(db *gorm.DB, instance interface{}) (interface{}, error)
}

// Creates a form for a request. The instance is nil for new objects.
type FormFactory func(r *http.Request, instance interface{}) Form

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return v
}

// Returns the validator of the model forms. Custom validations can be registered on it.
func Validator() *validator.Validate {
	return validate
}

var _ Form = &ModelForm{}

// A form that decodes the JSON form into the model, and validates it with the validate struct tags.
//
// The primary key ("ID" field) is never changed by the request data.
type ModelForm struct {
	target    interface{}
	decodeErr error
	errors    map[string][]string
}

// Returns a FormFactory for the model. model is a pointer to a struct, only its type matters.
func NewModelForm(model interface{}) FormFactory {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return func(r *http.Request, instance interface{}) Form {
		target := instance
		if target == nil {
			target = reflect.New(t).Interface()
		}

		f := &ModelForm{
			target: target,
			errors: map[string][]string{},
		}

		id, hasID := idField(target)
		var original reflect.Value
		if hasID {
			original = reflect.New(id.Type()).Elem()
			original.Set(id)
		}

		data, err := json.Marshal(JSONForm(r))
		if err == nil {
			err = json.Unmarshal(data, target)
		}
		f.decodeErr = err

		if hasID {
			id.Set(original)
		}

		return f
	}
}

func idField(instance interface{}) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	f := v.FieldByName("ID")
	if !f.IsValid() || !f.CanSet() {
		return reflect.Value{}, false
	}

	return f, true
}

func (f *ModelForm) Validate() bool {
	f.errors = map[string][]string{}

	if f.decodeErr != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(f.decodeErr, &ute) && ute.Field != "" {
			f.addError(ute.Field, fmt.Sprintf("Invalid type, expected %s.", ute.Type.Kind()))
		} else {
			f.addError("_body", f.decodeErr.Error())
		}
		return false
	}

	err := validate.Struct(f.target)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		f.addError("_body", err.Error())
		return false
	}

	for _, fe := range verrs {
		f.addError(fe.Field(), validationMessage(fe))
	}

	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "min", "gte":
		return fmt.Sprintf("Must be at least %s.", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("Must be at most %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	}

	return fmt.Sprintf("Failed on the '%s' validation.", fe.Tag())
}

func (f *ModelForm) addError(field, msg string) {
	f.errors[field] = append(f.errors[field], msg)
}

func (f *ModelForm) FormatErrors() map[string]interface{} {
	return map[string]interface{}{"fields": f.errors}
}

// The decoded instance.
func (f *ModelForm) Instance() interface{} {
	return f.target
}

func (f *ModelForm) CreateObj(db *gorm.DB) (interface{}, error) {
	if err := db.Create(f.target).Error; err != nil {
		return nil, err
	}

	return f.target, nil
}

func (f *ModelForm) UpdateObj(db *gorm.DB, instance interface{}) (interface{}, error) {
	if err := db.Save(f.target).Error; err != nil {
		return nil, err
	}

	return f.target, nil
}
