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
	"github.com/tamasd/powernap"
	"github.com/tamasd/powernap/util"
	"gorm.io/gorm"
)

const (
	staticDeviceName     = "backups"
	staticTokenCount     = 10
	staticTokenByteCount = 5
)

// Device of the backup tokens. A user has at most one.
type StaticOTPDevice struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    string           `gorm:"size:64;not null;index" json:"-"`
	UserType  string           `gorm:"size:64;not null" json:"-"`
	Name      string           `gorm:"size:64" json:"name"`
	Confirmed bool             `json:"confirmed"`
	Tokens    []StaticOTPToken `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE" json:"tokens"`
}

// A single use backup token.
type StaticOTPToken struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	DeviceID uint   `gorm:"not null;index" json:"-"`
	Token    string `gorm:"size:16;not null;index" json:"token"`
}

func (StaticOTPDevice) TableName() string {
	return "static_otp_devices"
}

func (StaticOTPToken) TableName() string {
	return "static_otp_tokens"
}

func (t StaticOTPToken) ApiResponse() interface{} {
	return map[string]interface{}{
		"id":    t.ID,
		"token": t.Token,
	}
}

func newStaticOTPDevice(u powernap.User) (*StaticOTPDevice, error) {
	d := &StaticOTPDevice{
		UserID:    u.GetID(),
		UserType:  powernap.UserType(u),
		Name:      staticDeviceName,
		Confirmed: true,
		Tokens:    make([]StaticOTPToken, staticTokenCount),
	}

	for i := range d.Tokens {
		token, err := util.RandomBase32(staticTokenByteCount)
		if err != nil {
			return nil, err
		}
		d.Tokens[i].Token = token
	}

	return d, nil
}

// Deletes the token if the device has it.
func (d *StaticOTPDevice) consumeToken(db *gorm.DB, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	res := db.Where("device_id = ? AND token = ?", d.ID, token).Delete(&StaticOTPToken{})

	return res.RowsAffected > 0, res.Error
}

func deleteStaticOTPDevices(db *gorm.DB, u powernap.User) error {
	var ids []uint
	if err := userScope(db, u).Model(&StaticOTPDevice{}).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := db.Where("device_id IN ?", ids).Delete(&StaticOTPToken{}).Error; err != nil {
		return err
	}

	return db.Where("id IN ?", ids).Delete(&StaticOTPDevice{}).Error
}

func userScope(db *gorm.DB, u powernap.User) *gorm.DB {
	return db.Where("user_id = ? AND user_type = ?", u.GetID(), powernap.UserType(u))
}
