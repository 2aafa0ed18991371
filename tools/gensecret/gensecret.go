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

package gensecretcmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tamasd/powernap/lib/log"
	"github.com/tamasd/powernap/util"
)

// Valid lengths of the secret configuration value (AES-128, AES-192, AES-256).
var keyLengths = map[int]bool{16: true, 24: true, 32: true}

// Generates a random secret.
//
// The hex encoded value can be used as the secret configuration value,
// which encrypts the stored TOTP keys.
func Generate(length int) (string, error) {
	if !keyLengths[length] {
		return "", fmt.Errorf("invalid length %d, use 16, 24 or 32", length)
	}

	b, err := util.RandomBytes(length)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func CreateGenSecretCMD(logger *log.Log) *cobra.Command {
	gscmd := &cobra.Command{
		Use:   "gensecret",
		Short: "generates a value for the secret configuration key",
	}

	length := gscmd.Flags().Int("length", 32, "length of the secret in bytes")

	gscmd.Run = func(c *cobra.Command, args []string) {
		secret, err := Generate(*length)
		if err != nil {
			logger.User().Println(err)
			return
		}

		fmt.Fprintln(c.OutOrStdout(), secret)
	}

	return gscmd
}
