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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

var ErrNoUserLoader = errors.New(`define either the "UserLoader" or the "Users" field`)

// A function that adds the routes of a module to an architect.
type ViewModule func(a *Architect) error

type namedViewModule struct {
	name   string
	module ViewModule
}

var (
	viewModulesMu sync.Mutex
	viewModules   = map[string][]namedViewModule{}
)

// Registers a view module for the architect with the given name.
//
// View modules are usually registered from the init() function of the
// package that contains the views. They are loaded when the architect is
// registered on a server.
func RegisterViewModule(architect, name string, module ViewModule) {
	viewModulesMu.Lock()
	defer viewModulesMu.Unlock()

	for _, m := range viewModules[architect] {
		if m.name == name {
			panic("view module " + name + " is already registered for " + architect)
		}
	}

	viewModules[architect] = append(viewModules[architect], namedViewModule{name: name, module: module})
}

func registeredViewModules(architect string) []namedViewModule {
	viewModulesMu.Lock()
	defer viewModulesMu.Unlock()

	return append([]namedViewModule(nil), viewModules[architect]...)
}

type ArchitectConfig struct {
	// Version number of the endpoints.
	Version int
	// URL prefix of the endpoints. "{version}" is replaced with the version number. The default is the api_url_prefix configuration value.
	Prefix string
	// Decorators of every route. The default is DefaultDecorators().
	Decorators []Decorator
	Name       string
	// Replacements of the generic crudify functions. The keys are GET, GET ONE, POST, PUT and DELETE.
	CrudifyFuncs map[string]View
	LoginManager *LoginManager
	// Loads the user from the token in the auth_header header.
	UserLoader UserLoader
	// Used to load the users of redis tokens when there is no UserLoader.
	Users UserRepository
	// The default is CheckRateLimit.
	BeforeRequest []func(http.Handler) http.Handler
	AfterRequest  []func(http.Handler) http.Handler
}

// Creates blueprints with common settings and registers them on a server.
type Architect struct {
	Name         string
	Version      int
	prefix       string
	decorators   []Decorator
	crudifyFuncs map[string]View
	loginManager *LoginManager
	before       []func(http.Handler) http.Handler
	after        []func(http.Handler) http.Handler

	blueprints []*Blueprint
	modules    []namedViewModule
	config     *Config
}

func NewArchitect(c ArchitectConfig) (*Architect, error) {
	if c.UserLoader == nil && c.Users == nil {
		return nil, ErrNoUserLoader
	}

	a := &Architect{
		Name:         c.Name,
		Version:      c.Version,
		prefix:       c.Prefix,
		decorators:   c.Decorators,
		crudifyFuncs: map[string]View{},
		loginManager: c.LoginManager,
		before:       c.BeforeRequest,
		after:        c.AfterRequest,
	}

	if a.Name == "" {
		a.Name = "architect"
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.decorators == nil {
		a.decorators = DefaultDecorators()
	}
	if a.before == nil {
		a.before = []func(http.Handler) http.Handler{CheckRateLimit}
	}

	for _, k := range CrudMethods {
		if f, ok := c.CrudifyFuncs[k]; ok && f != nil {
			a.crudifyFuncs[k] = f
		}
	}

	loader := c.UserLoader
	if loader == nil {
		loader = UserFromRedisTokenWrapper(c.Users)
	}
	if a.loginManager == nil {
		a.loginManager = NewLoginManager()
	}
	a.loginManager.RequestLoader(RequestUserWrapper(loader))

	return a, nil
}

// The URL prefix of the endpoints.
func (a *Architect) Prefix(cfg *Config) string {
	prefix := a.prefix
	if prefix == "" {
		prefix = cfg.APIURLPrefix
	}

	return strings.ReplaceAll(prefix, "{version}", strconv.Itoa(a.Version))
}

func (a *Architect) DecoratorNames() []string {
	return DecoratorNames(a.decorators)
}

func (a *Architect) LoginManager() *LoginManager {
	return a.loginManager
}

// Adds a view module to this architect only.
func (a *Architect) AddViewModule(name string, module ViewModule) {
	a.modules = append(a.modules, namedViewModule{name: name, module: module})
}

// Creates a new blueprint for the architect.
//
// Only the defaults that are named after a decorator are kept.
func (a *Architect) SubBlueprint(name, urlPrefix string, defaults map[string]interface{}) *Blueprint {
	kept := map[string]interface{}{}
	for _, n := range a.DecoratorNames() {
		if v, ok := defaults[n]; ok {
			kept[n] = v
		}
	}

	bp := NewBlueprint(name, urlPrefix, a.decorators, kept)
	for k, v := range a.crudifyFuncs {
		bp.crudifyFuncs[k] = v
	}
	bp.BeforeRequest(a.before...)
	bp.AfterRequest(a.after...)

	a.blueprints = append(a.blueprints, bp)

	return bp
}

func (a *Architect) Blueprints() []*Blueprint {
	return a.blueprints
}

func (a *Architect) loadViewModules(s *Server) {
	modules := append(registeredViewModules(a.Name), a.modules...)
	for _, m := range modules {
		if err := m.module(a); err != nil {
			s.Logger.User().Printf("ERROR LOADING: %s: %v\n", m.name, err)
			continue
		}
		s.Logger.Verbose().Printf("LOADED: %s\n", m.name)
	}
}

// Registers the blueprints on the server.
//
// The view modules are loaded first, and the models of the crudified
// endpoints are migrated if the server has a database.
func (a *Architect) Register(s *Server) error {
	a.config = s.Config
	a.loadViewModules(s)

	prefix := a.Prefix(s.Config)
	models := []interface{}{}
	for _, bp := range a.blueprints {
		bp.register(s, prefix, a.loginManager)
		models = append(models, bp.models...)
	}

	if s.DB != nil && len(models) > 0 {
		if err := s.Migrate(models...); err != nil {
			return fmt.Errorf("migrating the models of %s: %v", a.Name, err)
		}
	}

	return nil
}

// Installs CORS handling and registers the blueprints on the server.
func (a *Architect) InitApp(s *Server) error {
	s.Use(CORSMiddleware())
	return a.Register(s)
}

// Returns the metadata of all routes with the full URLs.
func (a *Architect) Links() []Link {
	cfg := a.config
	if cfg == nil {
		cfg = defaultConfig
	}
	prefix := a.Prefix(cfg)

	links := []Link{}
	for _, bp := range a.blueprints {
		for _, l := range bp.Links() {
			l.URL = prefix + l.URL
			links = append(links, l)
		}
	}

	return links
}
