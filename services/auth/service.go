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

/*
Two factor authentication and token login.

OTPService keeps the TOTP and backup token devices of the users in the
database. The OTP verification state belongs to the auth token of the
request: it is the otp field of the token's redis hash, so the service
requires redis.

The otp decorator (see Decorators()) rejects the requests of the users who
have a confirmed TOTP device, but have not verified their token yet.
*/
package auth

import (
	"errors"
	"net/http"

	"github.com/tamasd/powernap"
	"gorm.io/gorm"
)

const otpField = "otp"

var (
	ErrNoRedis       = errors.New("the otp service requires redis")
	ErrNoDevice      = errors.New("no otp device")
	ErrNotAuthorized = errors.New("the request has no authenticated user")
)

var _ powernap.Service = &OTPService{}

type OTPService struct {
	// Issuer in the authenticator apps. The default is the project configuration value.
	Issuer string
}

func NewOTPService(issuer string) *OTPService {
	return &OTPService{
		Issuer: issuer,
	}
}

func (s *OTPService) Models() []interface{} {
	return []interface{}{
		&TOTPDevice{},
		&StaticOTPDevice{},
		&StaticOTPToken{},
	}
}

func (s *OTPService) Register(srv *powernap.Server) error {
	if srv.Redis == nil {
		return ErrNoRedis
	}

	if s.Issuer == "" {
		s.Issuer = srv.Config.Project
	}

	return nil
}

// A user with a login name. The login labels the TOTP device in the authenticator apps.
type LoginUser interface {
	Login() string
}

// The login of the user, or its id when it has none.
func loginName(u powernap.User) string {
	if l, ok := u.(LoginUser); ok && l.Login() != "" {
		return l.Login()
	}

	return u.GetID()
}

func authenticatedUser(r *http.Request) (powernap.User, error) {
	u := powernap.CurrentUser(r)
	if !u.IsAuthenticated() {
		return nil, ErrNotAuthorized
	}

	return u, nil
}

func findTOTPDevice(r *http.Request, confirmedOnly bool) (*TOTPDevice, error) {
	u, err := authenticatedUser(r)
	if err != nil {
		return nil, err
	}

	q := userScope(powernap.GetDB(r), u)
	if confirmedOnly {
		q = q.Where("confirmed = ?", true)
	}

	d := &TOTPDevice{}
	if err := q.Order("id DESC").First(d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return d, nil
}

// The TOTP device of the current user. Returns nil without an error if there is none.
func (s *OTPService) TOTPDevice(r *http.Request) (*TOTPDevice, error) {
	return findTOTPDevice(r, false)
}

// The confirmed TOTP device of the current user. Returns nil without an error if there is none.
func (s *OTPService) ConfirmedTOTPDevice(r *http.Request) (*TOTPDevice, error) {
	return findTOTPDevice(r, true)
}

// Replaces the TOTP devices of the current user with a new, unconfirmed one.
func (s *OTPService) CreateTOTPDevice(r *http.Request, name string) (*TOTPDevice, error) {
	u, err := authenticatedUser(r)
	if err != nil {
		return nil, err
	}

	db := powernap.GetDB(r)
	if err := userScope(db, u).Delete(&TOTPDevice{}).Error; err != nil {
		return nil, err
	}

	d, err := NewTOTPDevice(u, name)
	if err != nil {
		return nil, err
	}

	if err := powernap.Create(db, d); err != nil {
		return nil, err
	}

	return d, nil
}

// Confirms the TOTP device of the current user with a token.
//
// The request becomes OTP verified. With staticTokens, new backup tokens are
// generated and returned. Returns nil, false for an invalid token.
func (s *OTPService) ActivateTOTP(r *http.Request, token string, staticTokens bool) ([]StaticOTPToken, bool, error) {
	d, err := s.TOTPDevice(r)
	if err != nil {
		return nil, false, err
	}
	if d == nil {
		return nil, false, ErrNoDevice
	}

	db := powernap.GetDB(r)
	ok, err := d.VerifyToken(db, token)
	if err != nil || !ok {
		return nil, false, err
	}

	d.Confirmed = true
	if err := powernap.Save(db, d); err != nil {
		return nil, false, err
	}

	var tokens []StaticOTPToken
	if staticTokens {
		if tokens, err = s.CreateStaticOTPTokens(r); err != nil {
			return nil, false, err
		}
	}

	return tokens, true, s.SetOTPVerified(r, true)
}

// Checks a token with the confirmed TOTP device, then with the backup tokens of the current user.
//
// Backup tokens are single use. A valid token makes the request OTP verified.
func (s *OTPService) CheckOTP(r *http.Request, token string) (bool, error) {
	u, err := authenticatedUser(r)
	if err != nil {
		return false, err
	}

	db := powernap.GetDB(r)
	ok := false

	d, err := s.ConfirmedTOTPDevice(r)
	if err != nil {
		return false, err
	}
	if d != nil {
		if ok, err = d.VerifyToken(db, token); err != nil {
			return false, err
		}
	}

	if !ok {
		devices := []StaticOTPDevice{}
		if err := userScope(db, u).Where("confirmed = ?", true).Find(&devices).Error; err != nil {
			return false, err
		}

		for i := range devices {
			if ok, err = devices[i].consumeToken(db, token); err != nil {
				return false, err
			}
			if ok {
				break
			}
		}
	}

	if !ok {
		return false, nil
	}

	return true, s.SetOTPVerified(r, true)
}

// Replaces the backup tokens of the current user.
func (s *OTPService) CreateStaticOTPTokens(r *http.Request) ([]StaticOTPToken, error) {
	u, err := authenticatedUser(r)
	if err != nil {
		return nil, err
	}

	db := powernap.GetDB(r)
	if err := deleteStaticOTPDevices(db, u); err != nil {
		return nil, err
	}

	d, err := newStaticOTPDevice(u)
	if err != nil {
		return nil, err
	}

	if err := powernap.Create(db, d); err != nil {
		return nil, err
	}

	return d.Tokens, nil
}

// Removes every OTP device of the current user.
func (s *OTPService) DeleteOTPDevices(r *http.Request) error {
	u, err := authenticatedUser(r)
	if err != nil {
		return err
	}

	db := powernap.GetDB(r)
	if err := userScope(db, u).Delete(&TOTPDevice{}).Error; err != nil {
		return err
	}

	if err := deleteStaticOTPDevices(db, u); err != nil {
		return err
	}

	return s.SetOTPVerified(r, false)
}

// Checks if the auth token of the request is OTP verified.
func (s *OTPService) OTPVerified(r *http.Request) bool {
	token := powernap.AuthToken(r)
	rdb := powernap.GetRedis(r)
	if token == "" || rdb == nil {
		return false
	}

	v, err := rdb.HGet(r.Context(), token, otpField).Result()
	if err != nil {
		return false
	}

	return v == "true"
}

func (s *OTPService) SetOTPVerified(r *http.Request, verified bool) error {
	token := powernap.AuthToken(r)
	rdb := powernap.GetRedis(r)
	if rdb == nil {
		return ErrNoRedis
	}
	if token == "" {
		return nil
	}

	ctx := r.Context()
	if n, err := rdb.Exists(ctx, token).Result(); err != nil || n == 0 {
		return err
	}

	value := "false"
	if verified {
		value = "true"
	}

	return rdb.HSet(ctx, token, otpField, value).Err()
}
