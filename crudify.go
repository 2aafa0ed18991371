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
	"errors"
	"net/http"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Crudify methods.
const (
	CrudList   = "GET"
	CrudGet    = "GET ONE"
	CrudPost   = "POST"
	CrudPut    = "PUT"
	CrudDelete = "DELETE"
)

var CrudMethods = []string{CrudList, CrudGet, CrudPost, CrudPut, CrudDelete}

type CrudifyConfig struct {
	// The default is NewModelForm(model).
	CreateForm FormFactory
	// The default is CreateForm.
	UpdateForm FormFactory
	// Methods without endpoints.
	Ignore []string
	// Permissions of the methods, passed to the needs_permission decorator.
	NeedsPermission map[string][]string
	// Options of every endpoint.
	Options []RouteOption
	Events  []CrudEvent
}

// Models that restrict the list endpoint, e.g. to the objects of the current user.
type ListScoper interface {
	ScopeList(r *http.Request, db *gorm.DB) *gorm.DB
}

// Forms that expose the decoded instance to the crudify events.
type InstanceForm interface {
	Instance() interface{}
}

type crudifier struct {
	model      reflect.Type
	name       string
	createForm FormFactory
	updateForm FormFactory
	events     crudEvents
}

// Generates list, get, create, update and delete endpoints for a model.
//
// The model is a pointer to a gorm model struct. The get, update and delete
// endpoints are on url + "/<int:id>". The generic functions can be replaced
// with the crudify functions of the architect.
func (bp *Blueprint) Crudify(url string, model interface{}, cfg CrudifyConfig) {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	c := &crudifier{
		model:      t,
		name:       t.Name(),
		createForm: cfg.CreateForm,
		updateForm: cfg.UpdateForm,
		events:     cfg.Events,
	}
	if c.createForm == nil {
		c.createForm = NewModelForm(model)
	}
	if c.updateForm == nil {
		c.updateForm = c.createForm
	}

	bp.models = append(bp.models, reflect.New(t).Interface())

	funcs := map[string]View{
		CrudList:   c.list,
		CrudGet:    c.getOne,
		CrudPost:   c.post,
		CrudPut:    c.put,
		CrudDelete: c.delete,
	}

	for _, method := range CrudMethods {
		if containsString(cfg.Ignore, method) {
			continue
		}

		f := funcs[method]
		if override, ok := bp.crudifyFuncs[method]; ok && override != nil {
			f = override
		}

		bp.routeCrudifyMethod(url, c.name, method, f, cfg)
	}
}

func (bp *Blueprint) routeCrudifyMethod(url, modelName, method string, f View, cfg CrudifyConfig) {
	methodURL := url
	if method == CrudGet || method == CrudPut || method == CrudDelete {
		methodURL += "/<int:id>"
	}

	options := []RouteOption{
		Methods(strings.Split(method, " ")[0]),
		Endpoint(method + "_" + modelName),
	}
	if perms, ok := cfg.NeedsPermission[method]; ok && len(perms) > 0 {
		options = append(options, Set(DecoratorNeedsPermission, perms))
	}
	if method == CrudPost || method == CrudPut || method == CrudDelete {
		options = append(options, Middlewares(TransactionMiddleware))
	}
	options = append(options, cfg.Options...)

	bp.Route(methodURL, f, options...)
}

func (c *crudifier) newInstance() interface{} {
	return reflect.New(c.model).Interface()
}

func (c *crudifier) list(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	page, perPage := Pager(r)
	db := GetDB(r).Model(c.newInstance())
	if s, ok := c.newInstance().(ListScoper); ok {
		db = s.ScopeList(r, db)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	MaybeFail(db.Count(&total).Error)

	items := reflect.New(reflect.SliceOf(reflect.PointerTo(c.model)))
	MaybeFail(db.
		Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey}}).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(items.Interface()).Error)

	return Pagination{
		Items:   items.Elem().Interface(),
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}, http.StatusOK
}

// Loads the instance from the id route parameter, and checks its owner.
func (c *crudifier) load(r *http.Request) interface{} {
	instance := c.newInstance()
	err := GetDB(r).First(instance, IntParam(r, "id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		Fail(NotFoundError(nil))
	}
	MaybeFail(err)

	ConfirmOwner(r, instance, true)

	return instance
}

func (c *crudifier) getOne(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	instance := c.load(r)
	c.events.invokeBefore(r, CrudGet, instance)
	c.events.invokeAfter(r, CrudGet, instance)

	return instance, http.StatusOK
}

func (c *crudifier) post(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	form := c.createForm(r, nil)
	c.events.invokeBefore(r, CrudPost, formInstance(form))

	if !form.Validate() {
		return form.FormatErrors(), http.StatusBadRequest
	}

	db := GetDB(r)
	c.events.invokeInside(r, CrudPost, formInstance(form))
	instance, err := form.CreateObj(db)
	MaybeFail(ConvertDBError(err))
	c.events.invokeAfter(r, CrudPost, instance)

	return instance, http.StatusCreated
}

func (c *crudifier) put(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	instance := c.load(r)
	owner := ownerOf(instance)
	form := c.updateForm(r, instance)
	if changed := formInstance(form); ownerOf(instance) != owner || (changed != nil && ownerOf(changed) != owner) {
		Fail(OwnerError("The owner cannot be changed."))
	}
	c.events.invokeBefore(r, CrudPut, instance)

	if !form.Validate() {
		return form.FormatErrors(), http.StatusBadRequest
	}

	db := GetDB(r)
	c.events.invokeInside(r, CrudPut, instance)
	instance, err := form.UpdateObj(db, instance)
	MaybeFail(ConvertDBError(err))
	c.events.invokeAfter(r, CrudPut, instance)

	return instance, http.StatusOK
}

func (c *crudifier) delete(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	instance := c.load(r)
	c.events.invokeBefore(r, CrudDelete, instance)
	c.events.invokeInside(r, CrudDelete, instance)
	MaybeFail(ConvertDBError(Delete(GetDB(r), instance)))
	c.events.invokeAfter(r, CrudDelete, instance)

	return nil, http.StatusNoContent
}

func ownerOf(instance interface{}) string {
	if o, ok := instance.(Owned); ok {
		return o.OwnerID()
	}

	return ""
}

func formInstance(form Form) interface{} {
	if f, ok := form.(InstanceForm); ok {
		return f.Instance()
	}

	return nil
}
