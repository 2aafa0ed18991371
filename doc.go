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

/*
Powernap is a scaffolding layer for JSON REST APIs

An API is built around an Architect. The architect holds the named decorators, the user loading and the request hooks, and it hands out blueprints. A blueprint is a group of routes under a common URL prefix. Every view that is added to a blueprint is wrapped with the decorators of the architect, in order, so the first decorator is the innermost one. The default decorators format the response (format_), sanitize the strings in it (safe), check permissions (needs_permission), require a logged in user (login) and hide the endpoint from non-admin users unless it is public (public). The behavior of a decorator is set per route with an option named after the decorator.

Crudify generates list, get, create, update and delete endpoints for a gorm model. The generic functions can be replaced on the architect, and the forms on the blueprint.

Handlers report errors by panicking with Fail() or MaybeFail(). The error handler middleware recovers, and writes the error as {"errors": [...]} with the status code of the error.

The rate limiter, the temporary auth tokens and the two factor flags live in redis. The redis client and the database are optional, the features that need them are turned off without them.

Two optional services ship with the package. services/auth adds password hashes, token login and two factor authentication (TOTP devices, static backup tokens and the otp decorator). services/requestlog stores every request and response in the database, and purges the old entries on a schedule.

The framework contains APIs. These APIs are usually a middleware and a value in the request context (GetConfig(r), GetDB(r), GetRedis(r), CurrentUser(r), LogUser(r)).
*/
package powernap
