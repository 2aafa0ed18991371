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

package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/viper"
	"github.com/tamasd/powernap"
	"github.com/tamasd/powernap/services/auth"
	"github.com/tamasd/powernap/services/requestlog"
	"gorm.io/gorm"
)

const architectName = "app"

type Account struct {
	powernap.BaseUser
	Email        string `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"size:512;not null" json:"-"`
}

func (a *Account) GetPasswordHash() string {
	return a.PasswordHash
}

func (a *Account) Login() string {
	return a.Email
}

func (a *Account) ApiResponse() interface{} {
	return map[string]interface{}{
		"id":    a.GetID(),
		"email": a.Email,
		"admin": a.Admin,
	}
}

type accountRepository struct {
	db *gorm.DB
}

func (r accountRepository) LoadUser(ctx context.Context, id string) (powernap.User, error) {
	if r.db == nil {
		return nil, nil
	}

	a := &Account{}
	if err := r.db.WithContext(ctx).First(a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return a, nil
}

func lookupAccount(r *http.Request, identifier string) (auth.PasswordUser, error) {
	a := &Account{}
	if err := powernap.GetDB(r).First(a, "email = ?", identifier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return a, nil
}

type signupData struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

func signup(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	f := powernap.NewModelForm(&signupData{})(r, nil)
	if !f.Validate() {
		powernap.Fail(powernap.InvalidFormError(f.FormatErrors()))
	}
	data := f.(powernap.InstanceForm).Instance().(*signupData)

	hash, err := auth.HashPassword(data.Password)
	powernap.MaybeFail(err)

	a := &Account{
		Email:        data.Email,
		PasswordHash: hash,
	}
	powernap.MaybeFail(powernap.ConvertDBError(powernap.Create(powernap.GetDB(r), a)))

	return a, http.StatusCreated
}

func me(w http.ResponseWriter, r *http.Request) (interface{}, int) {
	return powernap.CurrentUser(r), http.StatusOK
}

type Widget struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;not null" json:"name" validate:"required,max=64"`
	Description string `gorm:"type:text" json:"description" validate:"max=4096"`
	Owner       string `gorm:"size:64;index" json:"owner"`
}

func (w *Widget) OwnerID() string {
	return w.Owner
}

func (w *Widget) ScopeList(r *http.Request, db *gorm.DB) *gorm.DB {
	return db.Where("owner = ?", powernap.CurrentUser(r).GetID())
}

var widgetOwner = powernap.CrudEventCallback{
	InsideCallback: func(r *http.Request, method string, instance interface{}) {
		if method == powernap.CrudPost {
			instance.(*Widget).Owner = powernap.CurrentUser(r).GetID()
		}
	},
}

func init() {
	powernap.RegisterViewModule(architectName, "widgets", func(a *powernap.Architect) error {
		bp := a.SubBlueprint("widgets", "", map[string]interface{}{
			powernap.DecoratorPublic: true,
		})
		bp.Crudify("/widgets", &Widget{}, powernap.CrudifyConfig{
			Events: []powernap.CrudEvent{widgetOwner},
		})

		return nil
	})
}

// Builds the architect of the example application. otp and reqlog are optional.
func buildArchitect(s *powernap.Server, otp *auth.OTPService, reqlog *requestlog.Logger) (*powernap.Architect, error) {
	decorators := powernap.DefaultDecorators()
	if otp != nil {
		decorators = auth.Decorators(otp)
	}

	var after []func(http.Handler) http.Handler
	if reqlog != nil {
		after = append(after, reqlog.Middleware)
	}

	a, err := powernap.NewArchitect(powernap.ArchitectConfig{
		Name:         architectName,
		Decorators:   decorators,
		Users:        accountRepository{db: s.DB},
		AfterRequest: after,
	})
	if err != nil {
		return nil, err
	}

	accounts := a.SubBlueprint("accounts", "", map[string]interface{}{
		powernap.DecoratorPublic: true,
	})
	accounts.Route("/accounts", signup, powernap.Endpoint("signup"),
		powernap.Methods(http.MethodPost),
		powernap.Set(powernap.DecoratorLogin, false),
		powernap.Middlewares(powernap.TransactionMiddleware),
	)
	accounts.Route("/accounts/me", me, powernap.Endpoint("me"), powernap.Set(auth.DecoratorOTP, false))
	auth.RegisterTokenViews(accounts, lookupAccount)
	if otp != nil {
		auth.RegisterViews(accounts, otp)
	}

	debug := a.SubBlueprint("debug", "/debug", map[string]interface{}{
		powernap.DecoratorPublic: true,
		powernap.DecoratorLogin:  false,
		auth.DecoratorOTP:        false,
	})
	debug.Route("/routes", func(w http.ResponseWriter, r *http.Request) (interface{}, int) {
		return a.Links(), http.StatusOK
	}, powernap.Endpoint("routes"), powernap.Middlewares(powernap.RestrictPrivateAddressMiddleware()))

	return a, nil
}

// Configures the server of the serve command.
func setupApp(cfg *viper.Viper, s *powernap.Server) error {
	if s.DB == nil {
		return errors.New("the example application needs a database, set db")
	}

	if err := s.Migrate(&Account{}); err != nil {
		return err
	}

	var otp *auth.OTPService
	if s.Redis != nil {
		otp = auth.NewOTPService(cfg.GetString("project"))
		if err := s.RegisterService(otp); err != nil {
			return err
		}
	} else {
		s.Logger.User().Println("redis is not configured, two factor authentication and token login are unavailable")
	}

	reqlog := requestlog.New("")
	a, err := buildArchitect(s, otp, reqlog)
	if err != nil {
		return err
	}
	reqlog.Prefix = a.Prefix(s.Config)

	if err := s.RegisterService(reqlog); err != nil {
		return err
	}

	return a.InitApp(s)
}
