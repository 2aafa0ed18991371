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
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tamasd/powernap"
	"github.com/tamasd/powernap/lib/log"
	"github.com/tamasd/powernap/services/requestlog"
)

func loadConfig() (*viper.Viper, *powernap.Config, error) {
	cfg := viper.New()
	cfg.SetConfigName("config")
	cfg.AddConfigPath(".")
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, err
		}
	}

	c, err := powernap.LoadConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	return cfg, c, nil
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "runs the example application",
		Run: func(cmd *cobra.Command, args []string) {
			powernap.Serve(setupApp)
		},
	}
}

func createRoutesCmd(logger *log.Log) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "lists the endpoints of the example application",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := loadConfig()
			if err != nil {
				return err
			}

			s := powernap.NewServer(c, nil, nil)
			s.Logger = logger

			a, err := buildArchitect(s, nil, nil)
			if err != nil {
				return err
			}
			if err := a.Register(s); err != nil {
				return err
			}

			printLinks(cmd.OutOrStdout(), a.Links())

			return nil
		},
	}
}

func printLinks(w io.Writer, links []powernap.Link) {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].URL < links[j].URL
	})

	for _, l := range links {
		fmt.Fprintf(w, "%-40s %-16s %s\n", l.URL, strings.Join(l.Methods, ","), l.Endpoint)
	}
}

func createPurgeLogsCmd(logger *log.Log) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purgelogs",
		Short: "deletes the old request log entries",
	}

	days := cmd.Flags().Int("days", 0, "Age of the deleted entries in days. The default is activity_log_expiration.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, c, err := loadConfig()
		if err != nil {
			return err
		}
		if c.DB == "" {
			return errors.New("db is not configured")
		}

		db, err := powernap.ConnectDB(c.DB, c.DBMaxIdleConn, c.DBMaxOpenConn)
		if err != nil {
			return err
		}
		if conn, err := db.DB(); err == nil {
			defer conn.Close()
		}

		if *days <= 0 {
			*days = c.ActivityLogExpiration
		}

		n, err := requestlog.PurgeOldLogs(db, *days)
		if err != nil {
			return err
		}

		logger.User().Printf("deleted %d request log entries\n", n)

		return nil
	}

	return cmd
}
