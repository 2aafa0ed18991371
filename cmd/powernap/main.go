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
Command line helper for powernap applications.

The serve command runs an example application with token login, two factor
authentication, request logging and a crudified model. The configuration is
read from config.* in the working directory and from the environment.
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tamasd/powernap/lib/log"
	"github.com/tamasd/powernap/tools/gensecret"
	"github.com/tamasd/powernap/tools/scaffold"
)

func main() {
	logger := log.DefaultOSLogger()

	rootCmd := &cobra.Command{
		Use:   "powernap",
		Short: "powernap is a command line helper for powernap REST APIs",
	}

	var (
		verbose = rootCmd.PersistentFlags().Bool("verbose", false, "Turns on verbose mode")
		trace   = rootCmd.PersistentFlags().Bool("trace", false, "Turns on tracing and debug mode")
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *trace {
			logger.Level = log.LOG_TRACE
		} else if *verbose {
			logger.Level = log.LOG_VERBOSE
		}
	}

	rootCmd.AddCommand(
		createServeCmd(),
		createRoutesCmd(logger),
		createPurgeLogsCmd(logger),
		gensecretcmd.CreateGenSecretCMD(logger),
		scaffoldcmd.CreateScaffoldCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
