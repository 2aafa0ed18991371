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

package auth

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/tamasd/powernap"
)

const (
	DecoratorOTP = "otp"

	defaultDeviceName = "default"
	invalidTokenMsg   = "Invalid token."
)

// Requires OTP verification from the users with a confirmed TOTP device. Default: true.
func OTPDecorator(svc *OTPService) powernap.Decorator {
	return powernap.Decorator{
		Name: DecoratorOTP,
		Wrap: func(v powernap.View, option interface{}) powernap.View {
			if !powernap.BoolOption(option, true) {
				return v
			}

			return func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
				if powernap.CurrentUser(r).IsAuthenticated() && !svc.OTPVerified(r) {
					d, err := svc.ConfirmedTOTPDevice(r)
					powernap.MaybeFail(err)
					if d != nil {
						powernap.Fail(powernap.UnauthorizedOTPError(powernap.GetConfig(r).TwoFactorErrorMsg))
					}
				}

				return v(w, r)
			}
		},
	}
}

// The default decorators with the otp decorator. The otp check runs right after the login check.
func Decorators(svc *OTPService) []powernap.Decorator {
	decorators := []powernap.Decorator{}
	for _, d := range powernap.DefaultDecorators() {
		if d.Name == powernap.DecoratorLogin {
			decorators = append(decorators, OTPDecorator(svc))
		}
		decorators = append(decorators, d)
	}

	return decorators
}

func failOTP(err error) {
	if errors.Is(err, ErrNoDevice) {
		powernap.Fail(powernap.NotFoundError("There is no two factor device."))
	}

	powernap.MaybeFail(err)
}

type createTOTPData struct {
	Name string `json:"name"`
}

type activateTOTPData struct {
	Token        string `json:"token"`
	StaticTokens bool   `json:"static_tokens"`
}

type otpTokenData struct {
	Token string `json:"token"`
}

// Adds the two factor endpoints to a blueprint.
//
// The routes need an authenticated user. Only the verification endpoint skips
// the otp decorator.
func RegisterViews(bp *powernap.Blueprint, svc *OTPService) {
	tx := powernap.Middlewares(powernap.TransactionMiddleware)

	bp.Route("/otp", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		d, err := svc.ConfirmedTOTPDevice(r)
		failOTP(err)

		u := powernap.CurrentUser(r)
		var count int64
		err = powernap.GetDB(r).
			Model(&StaticOTPToken{}).
			Joins("JOIN static_otp_devices ON static_otp_devices.id = static_otp_tokens.device_id").
			Where("static_otp_devices.user_id = ? AND static_otp_devices.user_type = ?", u.GetID(), powernap.UserType(u)).
			Count(&count).Error
		failOTP(err)

		return map[string]interface{}{
			"totp":          d != nil,
			"verified":      svc.OTPVerified(r),
			"static_tokens": count,
		}, http.StatusOK
	}, powernap.Endpoint("otp status"), powernap.Set(DecoratorOTP, false))

	bp.Route("/otp/totp", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		data := createTOTPData{}
		if r.ContentLength != 0 {
			powernap.MustDecode(r, &data)
		}
		if data.Name == "" {
			data.Name = defaultDeviceName
		}

		d, err := svc.CreateTOTPDevice(r, data.Name)
		failOTP(err)

		key, err := d.PublicKey()
		failOTP(err)

		img, err := d.QRCode(loginName(powernap.CurrentUser(r)), svc.Issuer)
		failOTP(err)

		return map[string]interface{}{
			"id":         d.ID,
			"name":       d.Name,
			"public_key": key,
			"qrcode":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		}, http.StatusCreated
	}, powernap.Endpoint("create totp"), powernap.Methods(http.MethodPost), tx)

	bp.Route("/otp/totp/qrcode", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		d, err := svc.TOTPDevice(r)
		failOTP(err)
		if d == nil {
			failOTP(ErrNoDevice)
		}

		img, err := d.QRCode(loginName(powernap.CurrentUser(r)), svc.Issuer)
		failOTP(err)

		w.Header().Set("Content-Type", "image/png")

		return img, http.StatusOK
	}, powernap.Endpoint("totp qrcode"), powernap.Set(powernap.DecoratorFormat, false))

	bp.Route("/otp/totp/activate", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		data := activateTOTPData{}
		powernap.MustDecode(r, &data)

		tokens, ok, err := svc.ActivateTOTP(r, data.Token, data.StaticTokens)
		failOTP(err)
		if !ok {
			powernap.Fail(powernap.InvalidFormError(map[string]interface{}{
				"token": []string{invalidTokenMsg},
			}))
		}

		if tokens == nil {
			tokens = []StaticOTPToken{}
		}

		return map[string]interface{}{
			"activated":     true,
			"static_tokens": tokens,
		}, http.StatusOK
	}, powernap.Endpoint("activate totp"), powernap.Methods(http.MethodPost), tx)

	bp.Route("/otp/verify", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		data := otpTokenData{}
		powernap.MustDecode(r, &data)

		ok, err := svc.CheckOTP(r, data.Token)
		failOTP(err)
		if !ok {
			powernap.Fail(powernap.UnauthorizedOTPError(invalidTokenMsg))
		}

		return map[string]interface{}{"verified": true}, http.StatusOK
	}, powernap.Endpoint("verify otp"), powernap.Methods(http.MethodPost), powernap.Set(DecoratorOTP, false), tx)

	bp.Route("/otp/static", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		d, err := svc.ConfirmedTOTPDevice(r)
		failOTP(err)
		if d == nil {
			failOTP(ErrNoDevice)
		}

		tokens, err := svc.CreateStaticOTPTokens(r)
		failOTP(err)

		return tokens, http.StatusCreated
	}, powernap.Endpoint("create static otp tokens"), powernap.Methods(http.MethodPost), tx)

	bp.Route("/otp", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		failOTP(svc.DeleteOTPDevices(r))

		return nil, http.StatusNoContent
	}, powernap.Endpoint("delete otp devices"), powernap.Methods(http.MethodDelete), tx)
}
