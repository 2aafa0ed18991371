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
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/dgryski/dgoogauth"
	"github.com/tamasd/powernap"
	"github.com/tamasd/powernap/util"
	"gorm.io/gorm"
)

const (
	totpKeyLength = 20
	qrCodeSize    = 256
)

// Time based one time password device (RFC 6238), compatible with Google Authenticator.
//
// The key is stored hex encoded. When util.SetKey() is called, the stored key is encrypted.
type TOTPDevice struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"size:64;not null;index" json:"-"`
	UserType  string `gorm:"size:64;not null" json:"-"`
	Name      string `gorm:"size:64" json:"name"`
	Confirmed bool   `json:"confirmed"`
	Key       string `gorm:"size:256;not null" json:"-"`
	Step      int64  `json:"-"`
	T0        int64  `json:"-"`
	Digits    int    `json:"-"`
	Tolerance int64  `json:"-"`
	Drift     int64  `json:"-"`
	LastT     int64  `json:"-"`
}

func (TOTPDevice) TableName() string {
	return "totp_devices"
}

// Creates an unconfirmed device with a random key and the default settings.
//
// Only 6 digit tokens are supported.
func NewTOTPDevice(u powernap.User, name string) (*TOTPDevice, error) {
	key, err := util.RandomBytes(totpKeyLength)
	if err != nil {
		return nil, err
	}

	d := &TOTPDevice{
		UserID:    u.GetID(),
		UserType:  powernap.UserType(u),
		Name:      name,
		Step:      30,
		Digits:    6,
		Tolerance: 1,
	}
	d.LastT = d.t(time.Now(), 0)

	if err = d.setKey(key); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *TOTPDevice) setKey(key []byte) error {
	encoded := hex.EncodeToString(key)
	if util.KeySet() {
		var err error
		if encoded, err = util.EncryptString(encoded); err != nil {
			return err
		}
	}

	d.Key = encoded

	return nil
}

// The secret key.
func (d *TOTPDevice) BinKey() ([]byte, error) {
	encoded := d.Key
	if util.KeySet() {
		var err error
		if encoded, err = util.DecryptString(encoded); err != nil {
			return nil, err
		}
	}

	return hex.DecodeString(encoded)
}

// The secret key in the base32 format of the authenticator apps.
func (d *TOTPDevice) PublicKey() (string, error) {
	key, err := d.BinKey()
	if err != nil {
		return "", err
	}

	return base32.StdEncoding.EncodeToString(key), nil
}

func (d *TOTPDevice) t(now time.Time, drift int64) int64 {
	step := d.Step
	if step <= 0 {
		step = 30
	}

	return (now.Unix()-d.T0)/step + drift
}

func (d *TOTPDevice) tokenAt(secret string, t int64) string {
	return fmt.Sprintf("%0*d", d.Digits, dgoogauth.ComputeCode(secret, t))
}

// The token that is valid now.
func (d *TOTPDevice) ValidToken() (string, error) {
	secret, err := d.PublicKey()
	if err != nil {
		return "", err
	}

	return d.tokenAt(secret, d.t(time.Now(), 0)), nil
}

// Checks a token.
//
// The current token is always accepted. Tokens of the neighbouring time
// steps (within the tolerance, corrected with the drift) are accepted only
// once, and they adjust the drift of the device. The changes are saved to db.
func (d *TOTPDevice) VerifyToken(db *gorm.DB, token string) (bool, error) {
	return d.verifyAt(db, token, time.Now())
}

func (d *TOTPDevice) verifyAt(db *gorm.DB, token string, now time.Time) (bool, error) {
	secret, err := d.PublicKey()
	if err != nil {
		return false, err
	}

	if token == d.tokenAt(secret, d.t(now, 0)) {
		return true, nil
	}

	for offset := -d.Tolerance; offset <= d.Tolerance; offset++ {
		t := d.t(now, d.Drift+offset)
		if t <= d.LastT || d.tokenAt(secret, t) != token {
			continue
		}

		d.LastT = t
		d.Drift += offset

		return true, db.Save(d).Error
	}

	return false, nil
}

// The otpauth:// URI of the device.
func (d *TOTPDevice) AuthURI(login, issuer string) (string, error) {
	secret, err := d.PublicKey()
	if err != nil {
		return "", err
	}

	label := login
	if issuer != "" {
		label = issuer + ":" + login
	}

	q := url.Values{}
	q.Set("secret", strings.TrimRight(secret, "="))
	if issuer != "" {
		q.Set("issuer", issuer)
	}

	return "otpauth://totp/" + url.PathEscape(label) + "?" + q.Encode(), nil
}

// Renders the auth URI as a PNG QR code.
func (d *TOTPDevice) QRCode(login, issuer string) ([]byte, error) {
	uri, err := d.AuthURI(login, issuer)
	if err != nil {
		return nil, err
	}

	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}

	if code, err = barcode.Scale(code, qrCodeSize, qrCodeSize); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(nil)
	if err = png.Encode(buf, code); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
