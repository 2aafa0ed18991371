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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Types that have a custom API representation.
type ApiResponder interface {
	ApiResponse() interface{}
}

// A page of items.
type Pagination struct {
	Items   interface{}
	Page    int
	PerPage int
	Total   int64
}

func (p Pagination) Pages() int {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 0
	}

	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// Page numbers for the Link header.
type PaginationParams struct {
	First   int
	Last    int
	Prev    int
	Next    int
	PerPage int
	Total   int64
}

func (p Pagination) Params() *PaginationParams {
	last := p.Pages()
	if last < 1 {
		last = 1
	}

	prev := p.Page - 1
	if prev < 1 {
		prev = 1
	}

	next := p.Page + 1
	if next > last {
		next = last
	}

	return &PaginationParams{
		First:   1,
		Last:    last,
		Prev:    prev,
		Next:    next,
		PerPage: p.PerPage,
		Total:   p.Total,
	}
}

// The formatted response of a view.
type ApiResponse struct {
	StatusCode int
	Results    interface{}
	Pagination *PaginationParams
	Headers    http.Header
}

// Creates a response.
//
// For 2xx codes the data is formatted: ApiResponders are converted with
// ApiResponse(), slices are converted item by item, and a Pagination is
// converted into its items plus a Link header. Other data is used as it is.
func NewApiResponse(r *http.Request, data interface{}, code int, headers map[string]string) *ApiResponse {
	res := &ApiResponse{
		StatusCode: code,
		Headers:    http.Header{},
	}

	if code/100 == 2 {
		res.Results = res.constructResults(data)
	} else {
		res.Results = data
		if code/100 == 4 && CurrentUser(r).IsAdmin() {
			LogWarn(r).Printf("Bad Admin Request to '%s': %v\n", r.URL.Path, data)
		}
	}

	for k, v := range headers {
		res.Headers.Set(k, v)
	}

	if res.Pagination != nil {
		res.Headers.Set("Link", res.paginationLinks(r))
	}

	return res
}

func (res *ApiResponse) constructResults(data interface{}) interface{} {
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return d
	case Pagination:
		res.Pagination = d.Params()
		return formatItems(d.Items)
	case *Pagination:
		res.Pagination = d.Params()
		return formatItems(d.Items)
	case ApiResponder:
		return d.ApiResponse()
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
		return formatItems(data)
	}

	return data
}

func formatItems(items interface{}) interface{} {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice {
		return items
	}

	list := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i).Interface()
		if ar, ok := item.(ApiResponder); ok {
			item = ar.ApiResponse()
		}
		list[i] = item
	}

	return list
}

func (res *ApiResponse) paginationLinks(r *http.Request) string {
	cfg := GetConfig(r)
	p := res.Pagination
	links := []string{}

	for _, link := range []struct {
		rel  string
		page int
	}{
		{"first", p.First},
		{"prev", p.Prev},
		{"next", p.Next},
		{"last", p.Last},
	} {
		q := r.URL.Query()
		q.Set(cfg.PaginationPage, strconv.Itoa(link.page))
		q.Set(cfg.PaginationPerPage, strconv.Itoa(p.PerPage))
		url := strings.TrimRight(cfg.BaseURL, "/") + r.URL.Path + "?" + q.Encode()
		links = append(links, fmt.Sprintf("<%s>; rel=\"%s\"", url, link.rel))
	}

	return strings.Join(links, ", ")
}

// Sanitizes every string in the results with the policy.
//
// The results are converted to their JSON representation first, so the
// strings of structs are sanitized too.
func (res *ApiResponse) Sanitize(policy *bluemonday.Policy) error {
	if res.Results == nil {
		return nil
	}

	b, err := json.Marshal(res.Results)
	if err != nil {
		return err
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err = dec.Decode(&generic); err != nil {
		return err
	}

	res.Results = sanitizeValue(policy, generic)

	return nil
}

func sanitizeValue(policy *bluemonday.Policy, v interface{}) interface{} {
	switch d := v.(type) {
	case string:
		return policy.Sanitize(d)
	case []interface{}:
		for i := range d {
			d[i] = sanitizeValue(policy, d[i])
		}
		return d
	case map[string]interface{}:
		for k := range d {
			d[k] = sanitizeValue(policy, d[k])
		}
		return d
	}

	return v
}

// Writes the response as JSON.
func (res *ApiResponse) Write(w http.ResponseWriter, r *http.Request) {
	for k, vs := range res.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	code := res.StatusCode
	if code == 0 {
		code = http.StatusOK
	}

	if code == http.StatusNoContent || (res.Results == nil && code != http.StatusOK) {
		w.WriteHeader(code)
		return
	}

	b, err := json.Marshal(res.Results)
	if err != nil {
		LogUser(r).Printf("failed to encode the response of %s: %v\n", r.URL.Path, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	NewRenderer().
		SetCode(code).
		RawJSON(b).
		Render(w, r)
}
