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

package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamasd/powernap/util"
	"golang.org/x/crypto/scrypt"
)

var (
	PASSWORD_HASH_SALT_LENGTH = 32
	PASSWORD_HASH_N           = 32768
	PASSWORD_HASH_R           = 8
	PASSWORD_HASH_P           = 1
	PASSWORD_HASH_KEYLEN      = 64
)

var (
	ErrInvalidHash       = errors.New("invalid hash format")
	ErrUnknownHashMethod = errors.New("unknown hash algorithm")
)

var hashVerifiers = map[string]func(pw, hash string) (bool, error){
	"scrypt": scryptVerify,
}

// Hashes a password with scrypt and the default parameters.
//
// The format of the hash is scrypt$salt$n$r$p$key, where salt and key are hex encoded.
func HashPassword(pw string) (string, error) {
	return hashPassword(pw,
		PASSWORD_HASH_SALT_LENGTH,
		PASSWORD_HASH_N,
		PASSWORD_HASH_R,
		PASSWORD_HASH_P,
		PASSWORD_HASH_KEYLEN,
	)
}

func hashPassword(pw string, saltlen, n, r, p, keylen int) (string, error) {
	salt, err := util.RandomBytes(saltlen)
	if err != nil {
		return "", err
	}

	hash, err := scrypt.Key([]byte(pw), salt, n, r, p, keylen)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("scrypt$%s$%d$%d$%d$%s",
		hex.EncodeToString(salt),
		n, r, p,
		hex.EncodeToString(hash),
	), nil
}

// Checks a password against a hash created by HashPassword.
func VerifyPassword(pw, hash string) (bool, error) {
	alg, _, found := strings.Cut(hash, "$")
	if !found {
		return false, ErrInvalidHash
	}

	fn, ok := hashVerifiers[alg]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownHashMethod, alg)
	}

	return fn(pw, hash)
}

func scryptVerify(pw, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return false, ErrInvalidHash
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, err
	}

	params := make([]int, 3)
	for i, part := range parts[2:5] {
		if params[i], err = strconv.Atoi(part); err != nil {
			return false, err
		}
	}

	pwhash, err := hex.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	newhash, err := scrypt.Key([]byte(pw), salt, params[0], params[1], params[2], len(pwhash))
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(pwhash, newhash) == 1, nil
}
