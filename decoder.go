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
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"mime"
	"net/http"
)

var NoDecoderErr = errors.New("no decoder found for the request content type")

// Request body decoders. The key is the content type, the value is a decoder that decodes the contents of the Reader into v.
var Decoders = map[string]func(body io.Reader, v interface{}) error{
	"application/json": JSONDecoder,
	"application/xml":  XMLDecoder,
	"text/xml":         XMLDecoder,
}

func JSONDecoder(body io.Reader, v interface{}) error {
	return json.NewDecoder(body).Decode(v)
}

func XMLDecoder(body io.Reader, v interface{}) error {
	return xml.NewDecoder(body).Decode(v)
}

// Returns the request body.
//
// The body is read only once. Later calls (and later readers of r.Body) get the same bytes.
func RequestBody(r *http.Request) []byte {
	_, state := ensureState(r)
	if state.bodyRead {
		return state.body
	}
	state.bodyRead = true

	if r.Body == nil {
		return nil
	}

	b, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		LogVerbose(r).Printf("failed to read the request body: %v\n", err)
	}
	state.body = b
	r.Body = io.NopCloser(bytes.NewReader(b))

	return b
}

// Returns the media type of the request without the parameters.
func MediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}

	return mt
}

// Decodes a request body into v.
//
// The decoder is chosen by the Content-Type header. A missing Content-Type is treated as JSON. See the Decoders variable for more information.
func Decode(r *http.Request, v interface{}) error {
	ct := MediaType(r)
	if ct == "" {
		ct = "application/json"
	}

	if dec, ok := Decoders[ct]; ok {
		return dec(bytes.NewReader(RequestBody(r)), v)
	}

	return NoDecoderErr
}

// Same as Decode(), but it fails instead of returning an error.
func MustDecode(r *http.Request, v interface{}) {
	err := Decode(r, v)
	if err == NoDecoderErr {
		Fail(NewApiError(http.StatusUnsupportedMediaType, err.Error()))
	}
	if err != nil {
		Fail(InvalidDataFormatError(err.Error()))
	}
}
