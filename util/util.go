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

package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
)

// Reads the whole response body and converts it to a string.
func ResponseBodyToString(r *http.Response) string {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		log.Println(err)
		return ""
	}

	return string(b)
}

// Returns n random bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}

	return b, nil
}

// Returns a lowercase, unpadded base32 encoded string of n random bytes.
func RandomBase32(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}

	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)), nil
}

var aesgcm cipher.AEAD

var ErrNoKey = errors.New("encryption key is not set")

// Sets the package global secret. The size of the secret should be 32 bytes. See Encrypt() and Decrypt()
func SetKey(key []byte) error {
	aescipcher, err := aes.NewCipher(key)
	if err != nil {
		return err
	}

	aesgcm, err = cipher.NewGCM(aescipcher)
	if err != nil {
		return err
	}

	return nil
}

// Reports whether SetKey() was called.
func KeySet() bool {
	return aesgcm != nil
}

// Encrypts a message with AES-GCM using the package global key.
func Encrypt(msg []byte) ([]byte, error) {
	if aesgcm == nil {
		return nil, ErrNoKey
	}

	nonce, err := RandomBytes(aesgcm.NonceSize())
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(nonce)
	buf.Write(aesgcm.Seal(nil, nonce, msg, nil))

	return buf.Bytes(), nil
}

// Decrypts a message with AES-GCM using the package global key.
func Decrypt(msg []byte) ([]byte, error) {
	if aesgcm == nil {
		return nil, ErrNoKey
	}

	noncelen := aesgcm.NonceSize()
	if len(msg) < noncelen {
		return nil, errors.New("message is too short")
	}

	return aesgcm.Open(nil, msg[:noncelen], msg[noncelen:], nil)
}

// Encrypts a string using the package global key.
func EncryptString(msg string) (string, error) {
	if msg == "" {
		return "", nil
	}

	encrypted, err := Encrypt([]byte(msg))
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// Decrypts a string using the package global key.
func DecryptString(msg string) (string, error) {
	if msg == "" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(msg)
	if err != nil {
		return "", err
	}

	data, err := Decrypt(decoded)
	return string(data), err
}

var colorCodeRegex = regexp.MustCompile(`\x1b?\[[0-9;]+m`)

func StripTerminalColorCodes(s string) string {
	return colorCodeRegex.ReplaceAllString(s, "")
}
