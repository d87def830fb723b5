// Copyright 2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"strings"

	"github.com/penny-vault/pvscrape/pkginfo"
	"github.com/spf13/cobra"
)

var (
	versionDeps  bool
	versionShort bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pvscrape version",
	Long: `Print the pvscrape version, commit and build date. With --deps the
modules pvscrape was built with are listed as well, which helps when a
scraper breaks after an upgrade.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Println(pkginfo.Version)
			return
		}

		fmt.Println(pkginfo.BuildVersionString())

		if versionDeps {
			fmt.Printf("\nDependencies:\n")
			fmt.Println(strings.Join(pkginfo.GetDependencyList(), "\n"))
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionDeps, "deps", "d", false, "also print the modules pvscrape was built with")
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "only print the version number")
}
