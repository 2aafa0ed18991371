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
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pqUniqueViolation = "23505"

// Gets the database from the request context.
//
// Inside a TransactionMiddleware this is the transaction.
func GetDB(r *http.Request) *gorm.DB {
	db, ok := r.Context().Value(dbKey).(*gorm.DB)
	if !ok || db == nil {
		Fail(errors.New("no database is configured"))
	}

	return db
}

func connectToDB(connectString string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, err
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func retryDBConn(connectString string, tries uint) (*sql.DB, error) {
	conn, err := connectToDB(connectString)
	if err != nil {
		var operr *net.OpError
		if errors.As(err, &operr) && operr.Op == "dial" && tries > 0 {
			<-time.After(time.Second)
			return retryDBConn(connectString, tries-1)
		}
		return nil, err
	}

	return conn, nil
}

// Connects to PostgreSQL, and wraps the connection pool with gorm.
//
// Dial errors are retried for 10 seconds, so the database can start up in parallel with the application.
func ConnectDB(connectString string, maxIdleConnections, maxOpenConnections int) (*gorm.DB, error) {
	conn, err := retryDBConn(connectString, 10)
	if err != nil {
		return nil, err
	}

	conn.SetMaxIdleConns(maxIdleConnections)
	conn.SetMaxOpenConns(maxOpenConnections)

	return OpenGorm(postgres.New(postgres.Config{Conn: conn}))
}

// Opens a gorm database with the default settings of the package.
func OpenGorm(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Puts the database into the request context.
func DBMiddleware(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, SetContext(r, dbKey, db))
		})
	}
}

// Runs the rest of the handler chain in a database transaction.
//
// The transaction is committed when the handler returns, and rolled back when it panics.
func TransactionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tx := GetDB(r).Begin()
		MaybeFail(tx.Error)

		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		next.ServeHTTP(w, SetContext(r, dbKey, tx))

		MaybeFail(tx.Commit().Error)
		committed = true
	})
}

// Converts database errors to API errors.
//
// Missing records become NotFoundError, unique constraint violations become
// InvalidFormError with the violated column (or constraint) as the field name.
// Other errors are returned unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError(nil)
	}

	var perr *pq.Error
	if errors.As(err, &perr) {
		return ConstraintErrorConverter(nil)(perr)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return InvalidFormError(map[string]interface{}{
			"errors": []string{"The object already exists."},
		})
	}

	return err
}

// Returns a converter that maps constraint names to user friendly messages.
func ConstraintErrorConverter(msgMap map[string]string) func(*pq.Error) error {
	return func(err *pq.Error) error {
		if err.Code != pqUniqueViolation {
			return err
		}

		field := err.Column
		if field == "" {
			field = err.Constraint
		}

		msg, ok := msgMap[err.Constraint]
		if !ok {
			msg = err.Detail
		}

		return InvalidFormError(map[string]interface{}{
			"fields": map[string][]string{field: {msg}},
		})
	}
}

func DBErrorToVerboseString(err *pq.Error) string {
	return fmt.Sprintf(`
	Severity         %s
	Code             %s
	Message          %s
	Detail           %s
	Hint             %s
	Schema           %s
	Table            %s
	Column           %s
	Constraint       %s
`,
		err.Severity,
		err.Code,
		err.Message,
		err.Detail,
		err.Hint,
		err.Schema,
		err.Table,
		err.Column,
		err.Constraint,
	)
}
