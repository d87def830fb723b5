// Copyright 2024
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
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/penny-vault/pvscrape/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// providersCmd represents the providers command
var providersCmd = &cobra.Command{
	Use:   "providers <name>",
	Short: "List all providers available or get details about a specific provider",
	Run: func(cmd *cobra.Command, args []string) {

		r, _ := glamour.NewTermRenderer(
			// detect background color and pick either the default dark or light theme
			glamour.WithAutoStyle(),
			// wrap output at specific width (default is 80)
			glamour.WithWordWrap(80),
		)

		builder := strings.Builder{}

		if len(args) > 0 {
			dataProvider, ok := provider.Map[args[0]]
			if !ok {
				log.Fatal().Str("Provider", args[0]).Msg("unknown provider")
			}

			builder.WriteString(fmt.Sprintf("# %s\n", dataProvider.Name()))
			builder.WriteString(dataProvider.Description())
			builder.WriteString("\n\n## Datasets\n")
			for _, dataset := range dataProvider.Datasets() {
				start, end := dataset.DateRange()
				builder.WriteString(fmt.Sprintf("- %s (%s to %s): %s\n", dataset.Name, start.Format("2006-01-02"), end.Format("2006-01-02"), dataset.Description))
			}

			builder.WriteString("\n## Configuration\n")
			config := dataProvider.ConfigDescription()
			for _, key := range sortedKeys(config) {
				builder.WriteString(fmt.Sprintf("- `%s`: %s\n", key, config[key]))
			}
		} else {
			builder.WriteString("# Available Providers\n")
			for _, key := range sortedKeys(provider.Map) {
				dataProvider := provider.Map[key]
				builder.WriteString(fmt.Sprintf("\n## %s (`%s`)\n", dataProvider.Name(), key))
				builder.WriteString(dataProvider.Description())
				builder.WriteString("\n")
			}
		}

		out, err := r.Render(builder.String())
		if err != nil {
			log.Fatal().Err(err).Msg("could not render provider document")
		}

		fmt.Print(out)
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
