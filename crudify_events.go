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

import "net/http"

// Hooks of the generic crudify functions.
//
// Before runs after the instance is loaded or decoded, and before the
// validation. Inside runs right before the database write. After runs when
// the write succeeded. The list endpoint does not fire events.
type CrudEvent interface {
	Before(r *http.Request, method string, instance interface{})
	Inside(r *http.Request, method string, instance interface{})
	After(r *http.Request, method string, instance interface{})
}

type crudEvents []CrudEvent

func (e crudEvents) invokeBefore(r *http.Request, method string, instance interface{}) {
	for _, evt := range e {
		evt.Before(r, method, instance)
	}
}

func (e crudEvents) invokeInside(r *http.Request, method string, instance interface{}) {
	for _, evt := range e {
		evt.Inside(r, method, instance)
	}
}

func (e crudEvents) invokeAfter(r *http.Request, method string, instance interface{}) {
	for _, evt := range e {
		evt.After(r, method, instance)
	}
}

var _ CrudEvent = CrudEventCallback{}

type CrudEventCallback struct {
	BeforeCallback func(*http.Request, string, interface{})
	InsideCallback func(*http.Request, string, interface{})
	AfterCallback  func(*http.Request, string, interface{})
}

func (c CrudEventCallback) Before(r *http.Request, method string, instance interface{}) {
	if c.BeforeCallback != nil {
		c.BeforeCallback(r, method, instance)
	}
}

func (c CrudEventCallback) Inside(r *http.Request, method string, instance interface{}) {
	if c.InsideCallback != nil {
		c.InsideCallback(r, method, instance)
	}
}

func (c CrudEventCallback) After(r *http.Request, method string, instance interface{}) {
	if c.AfterCallback != nil {
		c.AfterCallback(r, method, instance)
	}
}
