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
	"context"
	"crypto/tls"
	"encoding/hex"
	"io"
	stdlog "log"
	"net/http"
	"os"

	"github.com/NYTimes/gziphandler"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/tamasd/powernap/lib/log"
	"github.com/tamasd/powernap/util"
	"gorm.io/gorm"
)

// A service is an unit of functionality with its own models. The models are migrated when the service is added to the server.
type Service interface {
	// Register the Service endpoints
	Register(*Server) error
	// Models of the service
	Models() []interface{}
}

// Sets up and starts a server.
//
// The configuration is read from the config.* file of the working directory
// and from the environment. configure is called with the ready server before
// it starts listening.
//
// Extra viper values:
//
// - secret: sets util.SetKey(). Must be hex.
//
// - host, port: listen address. Defaults to localhost:8080.
//
// - certfile, keyfile: enables HTTPS.
func Serve(configure func(cfg *viper.Viper, s *Server) error) {
	logger := log.DefaultOSLogger()
	cfg := viper.New()
	cfg.SetConfigName("config")
	cfg.AddConfigPath(".")
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		logger.Verbose().Println(err)
	}

	if secret := cfg.GetString("secret"); secret != "" {
		key, err := hex.DecodeString(secret)
		if err != nil {
			logger.Fatalln(err)
		}
		if err := util.SetKey(key); err != nil {
			logger.Fatalln(err)
		}
	}

	s, err := Nap(cfg, logger)
	if err != nil {
		logger.Fatalln(err)
	}
	defer s.Close()

	if err := configure(cfg, s); err != nil {
		logger.Fatalln(err)
	}

	cfg.SetDefault("host", "localhost")
	cfg.SetDefault("port", "8080")

	addr := cfg.GetString("host") + ":" + cfg.GetString("port")
	certFile := cfg.GetString("certfile")
	keyFile := cfg.GetString("keyfile")

	if err := s.StartHTTPS(addr, certFile, keyFile); err != nil {
		logger.Fatalln(err)
	}
}

// Sets up a Server with the recommended middlewares.
//
// The logger can be nil, the default is log.DefaultOSLogger(). If log_file is
// set, the logs are also written to that file.
//
// The database is connected when db is set, and redis when redis.addr is set.
//
// The middlewares are, in order: request log line, per-request logger, HSTS
// (when hsts is set), gzip (when gzip is true), request context (config,
// database, redis), error handler.
func Nap(cfg *viper.Viper, logger *log.Log) (*Server, error) {
	c, err := LoadConfig(cfg)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.DefaultOSLogger()
		if c.LogFile != "" {
			logger = log.FileLogger(c.LogFile)
		}
	}
	logger.Level = log.ParseLevel(c.LogLevel)

	var db *gorm.DB
	if c.DB != "" {
		if db, err = ConnectDB(c.DB, c.DBMaxIdleConn, c.DBMaxOpenConn); err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if c.Redis.Addr != "" {
		if rdb, err = ConnectRedis(context.Background(), c.Redis); err != nil {
			return nil, err
		}
	}

	s := NewServer(c, db, nil)
	if rdb != nil {
		s.Redis = rdb
	}
	s.Logger = logger

	var requestLoggerOut io.Writer = io.Discard
	if logger.Level > log.LOG_USER {
		requestLoggerOut = os.Stdout
	}

	s.Use(RequestLoggerMiddleware(requestLoggerOut))
	s.Use(DefaultLoggerMiddleware(logger.Level))

	if c.HSTS != nil {
		s.Use(HSTSMiddleware(*c.HSTS))
	}

	if c.Gzip {
		s.Use(gziphandler.GzipHandler)
	}

	s.Use(s.ContextMiddleware)
	s.Use(ErrorHandlerMiddleware(c.Debug))

	return s, nil
}

// The main server struct.
type Server struct {
	*httprouter.Router
	middlewares []func(http.Handler) http.Handler
	Config      *Config
	DB          *gorm.DB
	Redis       redis.UniversalClient
	Logger      *log.Log
	TLSConfig   *tls.Config
	closers     []io.Closer
}

// Creates a new server without middlewares. db and rdb can be nil.
func NewServer(cfg *Config, db *gorm.DB, rdb redis.UniversalClient) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	router := httprouter.New()
	router.HandleMethodNotAllowed = true
	router.NotFound = NotFoundHandler()
	router.MethodNotAllowed = methodNotAllowedHandler()

	s := &Server{
		Router: router,
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Logger: log.DefaultOSLogger(),
	}

	return s
}

func (s *Server) Use(middleware ...func(http.Handler) http.Handler) {
	s.middlewares = append(s.middlewares, middleware...)
}

// Puts the configuration, the database and the redis client into the request context.
func (s *Server) ContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = SetContext(r, configKey, s.Config)
		if s.DB != nil {
			r = SetContext(r, dbKey, s.DB.WithContext(r.Context()))
		}
		if s.Redis != nil {
			r = SetContext(r, redisKey, s.Redis)
		}
		r, _ = ensureState(r)

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Handler() http.Handler {
	return wrapHandler(s.Router, s.middlewares...)
}

func wrapHandler(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	return handler
}

func (s *Server) Handle(method, path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) {
	handler = wrapHandler(handler, middlewares...)
	s.Router.Handle(method, path, httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		r = SetContext(r, paramKey, p)
		handler.ServeHTTP(w, r)
	}))
}

func (s *Server) Get(path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("GET", path, handler, middlewares...)
}

func (s *Server) Post(path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("POST", path, handler, middlewares...)
}

func (s *Server) Put(path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("PUT", path, handler, middlewares...)
}

func (s *Server) Delete(path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("DELETE", path, handler, middlewares...)
}

func (s *Server) GetF(path string, handler http.HandlerFunc, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("GET", path, handler, middlewares...)
}

func (s *Server) PostF(path string, handler http.HandlerFunc, middlewares ...func(http.Handler) http.Handler) {
	s.Handle("POST", path, handler, middlewares...)
}

// Creates or updates the tables of the models.
func (s *Server) Migrate(models ...interface{}) error {
	if s.DB == nil {
		return nil
	}

	return s.DB.AutoMigrate(models...)
}

// Registers a service on the server, and migrates its models.
func (s *Server) RegisterService(svc Service) error {
	if err := s.Migrate(svc.Models()...); err != nil {
		return err
	}

	if err := svc.Register(s); err != nil {
		return err
	}

	if c, ok := svc.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	return nil
}

// Closes the registered services, then the database and the redis connections.
func (s *Server) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.closers = nil

	if s.Redis != nil {
		if cerr := s.Redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.DB != nil {
		if conn, dberr := s.DB.DB(); dberr == nil {
			if cerr := conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}

	return err
}

// Starts an HTTPS server. Without certificates it starts a HTTP server.
func (s *Server) StartHTTPS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:      addr,
		Handler:   s.Handler(),
		TLSConfig: s.TLSConfig,
	}

	s.Logger.User().Printf("Starting server on %s\n", addr)

	if stdlogger, ok := s.Logger.User().(*stdlog.Logger); ok {
		srv.ErrorLog = stdlogger
	}

	if certFile != "" && keyFile != "" {
		return srv.ListenAndServeTLS(certFile, keyFile)
	}

	return srv.ListenAndServe()
}

func (s *Server) StartHTTP(addr string) error {
	return s.StartHTTPS(addr, "", "")
}
