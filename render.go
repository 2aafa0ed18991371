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
	"encoding/json"
	"net/http"

	"github.com/golang/gddo/httputil"
)

// Content negotiation helper.
//
// The server's preference is the order how the offers are added by either the AddOffer() low-level method or the JSON()/Text() higher level methods.
//
//     powernap.NewRenderer().
//         SetCode(http.StatusOK).
//         JSON(data).
//         Text(message).
//         Render(w, r)
//
// The renderer writes the response immediately, so middlewares that wrap the
// ResponseWriter (request logging, gzip) see the final body.
type Renderer struct {
	handlers map[string]func(w http.ResponseWriter)
	offers   []string
	rendered bool
	Code     int // HTTP status code.
}

func NewRenderer() *Renderer {
	return &Renderer{
		handlers: make(map[string]func(w http.ResponseWriter)),
		offers:   make([]string, 0),
	}
}

// Sets the HTTP status code.
func (r *Renderer) SetCode(code int) *Renderer {
	r.Code = code
	return r
}

// Adds an offer for the content negotiation.
//
// The mediaType is the content type, the handler renders the data to the ResponseWriter.
func (r *Renderer) AddOffer(mediaType string, handler func(w http.ResponseWriter)) *Renderer {
	r.offers = append(r.offers, mediaType)
	r.handlers[mediaType] = handler

	return r
}

// Adds a JSON offer.
func (r *Renderer) JSON(v interface{}) *Renderer {
	return r.AddOffer("application/json", func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(v)
	})
}

// Adds a JSON offer with an already encoded document.
func (r *Renderer) RawJSON(b []byte) *Renderer {
	return r.AddOffer("application/json", func(w http.ResponseWriter) {
		w.Write(b)
	})
}

// Adds a plain text offer.
func (r *Renderer) Text(t string) *Renderer {
	return r.AddOffer("text/plain; charset=utf-8", func(w http.ResponseWriter) {
		w.Write([]byte(t))
	})
}

// Renders best offer to the ResponseWriter according to the client's content type preferences.
//
// Without offers only the status code is written; 204 if the code is not set.
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request) {
	if rr.rendered {
		return
	}
	rr.rendered = true

	if len(rr.offers) == 0 {
		if rr.Code == 0 || rr.Code == http.StatusOK {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(rr.Code)
		}
		return
	}

	ct := rr.offers[0]
	if len(rr.offers) > 1 {
		ct = httputil.NegotiateContentType(r, rr.offers, ct)
	}

	w.Header().Set("Content-Type", ct)

	if rr.Code > 0 {
		w.WriteHeader(rr.Code)
	}

	rr.handlers[ct](w)
}
