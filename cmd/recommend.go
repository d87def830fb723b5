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
	"context"
	"strings"
	"time"

	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var recommendBrowser bool

// recommendCmd represents the recommend command
var recommendCmd = &cobra.Command{
	Use:   "recommend <ticker...>",
	Short: "Download the current brokerage recommendation of tickers without saving it",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		fetchConfig := provider.FetchConfig{
			Browser: recommendBrowser,
			Retries: 3,
		}

		fetcher, err := fetchConfig.NewFetcher("zacks.user_agent")
		if err != nil {
			log.Fatal().Err(err).Msg("could not create fetcher")
		}
		defer fetcher.Close()

		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		recs := make([]*data.Recommendation, 0, len(args))
		for _, ticker := range args {
			rec, err := provider.FetchRecommendation(ctx, fetcher, provider.ZacksResearchURL, ticker, today)
			if err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Msg("could not download brokerage recommendation")
				continue
			}
			recs = append(recs, rec)
		}

		if showJSON {
			printJSON(recs)
			return
		}

		var sb strings.Builder
		sb.WriteString("# Brokerage recommendations\n\n")
		writeRecommendationTable(&sb, recs)
		renderMarkdown(sb.String())
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().BoolVar(&recommendBrowser, "browser", false, "load pages with a headless browser")
	recommendCmd.Flags().BoolVar(&showJSON, "json", false, "print recommendations as json")
}
