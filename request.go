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
	"net"
	"net/http"
	"strings"
)

const localhost = "127.0.0.1"

// Returns the JSON body of the request as an object.
//
// The body is parsed once per request. An unparseable body is an empty form.
// A body that is valid JSON but not an object fails with InvalidJSONError.
func JSONForm(r *http.Request) map[string]interface{} {
	_, state := ensureState(r)
	if state.formParsed {
		return state.form
	}
	state.formParsed = true
	state.form = map[string]interface{}{}

	body := bytes.TrimSpace(RequestBody(r))
	if len(body) == 0 {
		return state.form
	}

	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		LogVerbose(r).Printf("invalid JSON in the request body: %v\n", err)
		return state.form
	}

	form, ok := v.(map[string]interface{})
	if !ok {
		Fail(InvalidJSONError("Form not API compatible: must be JSON object."))
	}

	if mt := MediaType(r); mt != "application/json" {
		LogWarn(r).Printf("JSON form sent with the %q content type to %s\n", mt, r.URL.Path)
	}

	state.form = form
	return form
}

// Returns the address of the client.
//
// The addresses in the X-Forwarded-For header and the peer address are
// checked backwards, and the first one that is not a trusted proxy is
// returned. If all of them are trusted, the peer address is returned.
func RemoteAddr(r *http.Request) string {
	peer := peerAddr(r)
	cfg := GetConfig(r)

	route := []string{}
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, addr := range strings.Split(header, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				route = append(route, addr)
			}
		}
	}
	route = append(route, peer)

	for i := len(route) - 1; i >= 0; i-- {
		ip := net.ParseIP(route[i])
		if ip == nil {
			continue
		}
		if !cfg.IsTrustedProxy(ip) {
			return route[i]
		}
	}

	return peer
}

func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return localhost
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
