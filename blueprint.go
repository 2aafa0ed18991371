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
	"net/http"
	"reflect"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// Metadata of a route.
type Link struct {
	URL      string                 `json:"url"`
	Methods  []string               `json:"methods"`
	Endpoint string                 `json:"endpoint"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type routeOptions struct {
	methods     []string
	endpoint    string
	values      map[string]interface{}
	middlewares []func(http.Handler) http.Handler
}

type RouteOption func(*routeOptions)

// HTTP methods of the route. The default is GET.
func Methods(methods ...string) RouteOption {
	return func(o *routeOptions) {
		o.methods = append(o.methods, methods...)
	}
}

// Name of the route. The default is the name of the view function.
func Endpoint(name string) RouteOption {
	return func(o *routeOptions) {
		o.endpoint = name
	}
}

// Sets a decorator option. The name is the name of the decorator.
func Set(name string, value interface{}) RouteOption {
	return func(o *routeOptions) {
		o.values[name] = value
	}
}

// Extra middlewares that run right before the view.
func Middlewares(middlewares ...func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

type routeParam struct {
	name    string
	integer bool
}

type route struct {
	rule        string
	path        string
	methods     []string
	endpoint    string
	view        View
	params      []routeParam
	middlewares []func(http.Handler) http.Handler
}

// A group of routes under a common URL prefix.
//
// Every route of a blueprint is wrapped with the decorators of its architect.
type Blueprint struct {
	Name      string
	URLPrefix string

	decorators   []Decorator
	crudifyFuncs map[string]View
	defaults     map[string]interface{}
	before       []func(http.Handler) http.Handler
	after        []func(http.Handler) http.Handler

	routes []*route
	links  []Link
	models []interface{}
}

// Creates a standalone blueprint. Use Architect.SubBlueprint() to create a registered one.
func NewBlueprint(name, urlPrefix string, decorators []Decorator, defaults map[string]interface{}) *Blueprint {
	if defaults == nil {
		defaults = map[string]interface{}{}
	}

	return &Blueprint{
		Name:         name,
		URLPrefix:    urlPrefix,
		decorators:   decorators,
		crudifyFuncs: map[string]View{},
		defaults:     defaults,
	}
}

// Adds middlewares that run before every view of the blueprint.
func (bp *Blueprint) BeforeRequest(middlewares ...func(http.Handler) http.Handler) {
	bp.before = append(bp.before, middlewares...)
}

// Adds middlewares that wrap every request of the blueprint, including the error responses.
func (bp *Blueprint) AfterRequest(middlewares ...func(http.Handler) http.Handler) {
	bp.after = append(bp.after, middlewares...)
}

var ruleParamRegex = regexp.MustCompile(`<(?:(\w+):)?(\w+)>`)

// Converts a rule with <converter:name> parameters to a router path.
func convertRule(rule string) (string, []routeParam) {
	params := []routeParam{}
	path := ruleParamRegex.ReplaceAllStringFunc(rule, func(m string) string {
		parts := ruleParamRegex.FindStringSubmatch(m)
		converter, name := parts[1], parts[2]
		params = append(params, routeParam{name: name, integer: converter == "int"})
		if converter == "path" {
			return "*" + name
		}
		return ":" + name
	})

	return path, params
}

// Adds a route to the blueprint, and returns the decorated view.
//
// The decorator options of the route override the defaults of the
// blueprint. The first decorator wraps the view first.
func (bp *Blueprint) Route(rule string, view View, options ...RouteOption) View {
	opts := &routeOptions{values: map[string]interface{}{}}
	for _, o := range options {
		o(opts)
	}

	if len(opts.methods) == 0 {
		opts.methods = []string{http.MethodGet}
	}
	for i, m := range opts.methods {
		opts.methods[i] = strings.ToUpper(m)
	}

	if opts.endpoint == "" {
		opts.endpoint = functionName(view)
	}

	complete := make(map[string]interface{}, len(bp.defaults)+len(opts.values))
	for k, v := range bp.defaults {
		complete[k] = v
	}
	for k, v := range opts.values {
		complete[k] = v
	}

	linkOptions := make(map[string]interface{}, len(opts.values))
	for k, v := range opts.values {
		linkOptions[k] = v
	}
	bp.links = append(bp.links, Link{
		URL:      bp.URLPrefix + rule,
		Methods:  opts.methods,
		Endpoint: opts.endpoint,
		Options:  linkOptions,
	})

	for _, d := range bp.decorators {
		view = d.Wrap(view, complete[d.Name])
	}

	path, params := convertRule(rule)
	bp.routes = append(bp.routes, &route{
		rule:        rule,
		path:        path,
		methods:     opts.methods,
		endpoint:    opts.endpoint,
		view:        view,
		params:      params,
		middlewares: opts.middlewares,
	})

	return view
}

// Returns the metadata of the routes.
func (bp *Blueprint) Links() []Link {
	return bp.links
}

func (bp *Blueprint) register(s *Server, prefix string, lm *LoginManager) {
	for _, rt := range bp.routes {
		chain := []func(http.Handler) http.Handler{}
		chain = append(chain, bp.after...)
		chain = append(chain, ErrorHandlerMiddleware(s.Config.Debug))
		if lm != nil {
			chain = append(chain, lm.Middleware)
		}
		chain = append(chain, bp.before...)
		chain = append(chain, paramCheckMiddleware(rt.params))
		chain = append(chain, rt.middlewares...)

		handler := wrapHandler(ServeView(rt.view), chain...)
		for _, method := range rt.methods {
			s.Handle(method, prefix+bp.URLPrefix+rt.path, handler)
		}
	}
}

func paramCheckMiddleware(params []routeParam) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range params {
				if !p.integer {
					continue
				}
				if _, err := strconv.Atoi(Param(r, p.name)); err != nil {
					Fail(NotFoundError(nil))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Converts a View into a http.Handler.
//
// An *ApiResponse writes itself. A nil result only sets the status code.
// Strings and byte slices are written as they are, everything else is
// encoded as JSON.
func ServeView(v View) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, code := v(w, r)
		switch d := data.(type) {
		case *ApiResponse:
			d.Write(w, r)
		case nil:
			if code != 0 {
				w.WriteHeader(code)
			}
		case string:
			NewRenderer().SetCode(code).Text(d).Render(w, r)
		case []byte:
			if code != 0 {
				w.WriteHeader(code)
			}
			w.Write(d)
		default:
			NewRenderer().SetCode(code).JSON(d).Render(w, r)
		}
	})
}

// Returns a route parameter.
func Param(r *http.Request, name string) string {
	p, ok := r.Context().Value(paramKey).(httprouter.Params)
	if !ok {
		return ""
	}

	return p.ByName(name)
}

// Returns an integer route parameter. Fails with NotFoundError if the parameter is not an integer.
func IntParam(r *http.Request, name string) int {
	i, err := strconv.Atoi(Param(r, name))
	if err != nil {
		Fail(NotFoundError(nil))
	}

	return i
}

func functionName(f interface{}) string {
	name := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	return name
}
