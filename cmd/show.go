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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/goccy/go-json"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/edgar"
	"github.com/penny-vault/pvscrape/library"
	"github.com/penny-vault/pvscrape/provider"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const displayDateFormat = "2006-01-02"

var (
	showJSON bool
	showTop  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show records stored in the library",
}

var showEarningsCmd = &cobra.Command{
	Use:   "earnings <ticker>",
	Short: "Show the earnings announcements stored for a ticker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		ticker := strings.ToUpper(args[0])
		records := make([]*data.Earnings, 0)
		for _, tbl := range dataTables(ctx, myLibrary, data.EarningsKey) {
			rows, err := data.EarningsByTicker(ctx, myLibrary.Pool, tbl, ticker)
			if err != nil {
				log.Fatal().Err(err).Str("Table", tbl).Msg("could not query earnings")
			}
			records = append(records, rows...)
		}

		if showJSON {
			printJSON(records)
			return
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s earnings\n\n", ticker)
		sb.WriteString("| Date | Quarter | Forecast | Estimates | Actual | Surprise % |\n|---|---|---:|---:|---:|---:|\n")
		for _, record := range records {
			fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s | %s |\n", record.EventDate.Format(displayDateFormat), record.Quarter,
				formatFloat(record.Forecast), record.Estimates, formatFloat(record.Actual), formatFloat(record.Surprise))
		}
		renderMarkdown(sb.String())
	},
}

var showFilingsCmd = &cobra.Command{
	Use:   "filings <ticker>",
	Short: "Show the quarterly fundamentals stored for a ticker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		ticker := strings.ToUpper(args[0])
		filings := make([]*data.Filing, 0)
		for _, tbl := range dataTables(ctx, myLibrary, data.FilingsKey) {
			rows, err := data.FilingsByTicker(ctx, myLibrary.Pool, tbl, ticker)
			if err != nil {
				log.Fatal().Err(err).Str("Table", tbl).Msg("could not query filings")
			}
			filings = append(filings, rows...)
		}

		if showJSON {
			printJSON(filings)
			return
		}

		printer := message.NewPrinter(language.English)
		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s fundamentals\n\n", ticker)
		sb.WriteString("| Quarter End | Filed | Revenue | Earnings | EPS (diluted) | Book Value / Share | ROE |\n|---|---|---:|---:|---:|---:|---:|\n")
		for _, filing := range filings {
			filed := "n/a"
			if filing.FilingDate != nil {
				filed = filing.FilingDate.Format(displayDateFormat)
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n", filing.QuarterEnd.Format(displayDateFormat), filed,
				formatAmount(printer, filing.Revenue), formatAmount(printer, filing.Earnings), formatFloat(filing.EPSDiluted),
				formatFloat(filing.BookValuePerShare), formatFloat(filing.ROE))
		}
		renderMarkdown(sb.String())
	},
}

var showRecommendationsCmd = &cobra.Command{
	Use:   "recommendations <ticker>",
	Short: "Show the analyst recommendation history stored for a ticker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		ticker := strings.ToUpper(args[0])
		recs := make([]*data.Recommendation, 0)
		for _, tbl := range dataTables(ctx, myLibrary, data.RecommendationKey) {
			rows, err := data.RecommendationsByTicker(ctx, myLibrary.Pool, tbl, ticker)
			if err != nil {
				log.Fatal().Err(err).Str("Table", tbl).Msg("could not query recommendations")
			}
			recs = append(recs, rows...)
		}

		if showJSON {
			printJSON(recs)
			return
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s brokerage recommendations\n\n", ticker)
		writeRecommendationTable(&sb, recs)
		renderMarkdown(sb.String())
	},
}

var showHoldingsCmd = &cobra.Command{
	Use:   "holdings [cik...]",
	Short: "Show the top positions of the latest 13F report of each followed investor",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		subscriptions, err := myLibrary.Subscriptions(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list subscriptions")
		}

		report := make(map[string][]*edgar.Position)
		var sb strings.Builder
		sb.WriteString("# 13F holdings\n")

		printer := message.NewPrinter(language.English)
		hundred := decimal.NewFromInt(100)

		for _, subscription := range subscriptions {
			tbl, ok := subscription.DataTablesMap[data.HoldingsKey]
			if !ok {
				continue
			}

			filers, err := provider.EdgarFilers(subscription.Config)
			if err != nil {
				log.Error().Err(err).Str("SubscriptionID", subscription.ID.String()).Msg("subscription has an invalid config")
				continue
			}

			filers = selectFilers(filers, args)
			for _, filer := range filers {
				holdings, err := data.LatestHoldings(ctx, myLibrary.Pool, tbl, filer.CIK)
				if err != nil {
					log.Fatal().Err(err).Str("Table", tbl).Msg("could not query holdings")
				}

				if len(holdings) == 0 {
					continue
				}

				topN := filer.TopN
				if showTop > 0 {
					topN = showTop
				}

				positions := edgar.Aggregate(holdings, topN)
				report[filer.CIK] = positions

				fmt.Fprintf(&sb, "\n## %s (%s) as of %s\n\n", filer.Name, filer.CIK, holdings[0].ReportDate.Format(displayDateFormat))
				sb.WriteString("| Security | Ticker | CUSIP | Value | Weight |\n|---|---|---|---:|---:|\n")
				for _, position := range positions {
					fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s%% |\n", position.Security, position.Ticker, position.Cusip,
						printer.Sprintf("$%d", position.Value), position.Weight.Mul(hundred).StringFixed(2))
				}
			}
		}

		if showJSON {
			printJSON(report)
			return
		}

		renderMarkdown(sb.String())
	},
}

// selectFilers keeps the filers named by ciks. A CIK that is not followed
// is still looked up using the default top N.
func selectFilers(filers []edgar.Filer, ciks []string) []edgar.Filer {
	if len(ciks) == 0 {
		return filers
	}

	selected := make([]edgar.Filer, 0, len(ciks))
	for _, cik := range ciks {
		if filer, ok := edgar.FilerByCIK(filers, cik); ok {
			selected = append(selected, filer)
			continue
		}
		selected = append(selected, edgar.Filer{Name: cik, CIK: cik, TopN: 10})
	}
	return selected
}

func writeRecommendationTable(sb *strings.Builder, recs []*data.Recommendation) {
	sb.WriteString("| Date | Ticker | ABR | # Recs | Avg Target | Industry | Industry Rank |\n|---|---|---:|---:|---:|---|---|\n")
	for _, rec := range recs {
		numRecs := "n/a"
		if rec.NumRecommendations != nil {
			numRecs = strconv.Itoa(int(*rec.NumRecommendations))
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s | %s |\n", rec.EventDate.Format(displayDateFormat), rec.Ticker,
			formatFloat(rec.ABR), numRecs, formatFloat(rec.AverageTargetPrice), formatString(rec.Industry), formatString(rec.IndustryRank))
	}
}

// dataTables returns the tables of every subscription that stores key
func dataTables(ctx context.Context, myLibrary *library.Library, key string) []string {
	subscriptions, err := myLibrary.Subscriptions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not list subscriptions")
	}

	tables := make([]string, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if tbl, ok := subscription.DataTablesMap[key]; ok {
			tables = append(tables, tbl)
		}
	}

	if len(tables) == 0 {
		log.Warn().Str("DataType", key).Msg("no subscription stores this data type")
	}

	return tables
}

func openLibrary(ctx context.Context) *library.Library {
	myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
	if err != nil {
		log.Fatal().Err(err).Msg("could not load library info")
	}
	return myLibrary
}

func formatFloat(val *float64) string {
	if val == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*val, 'f', 2, 64)
}

func formatAmount(printer *message.Printer, val *float64) string {
	if val == nil {
		return "n/a"
	}
	return printer.Sprintf("%.0f", *val)
}

func formatString(val *string) string {
	if val == nil {
		return "n/a"
	}
	return *val
}

func printJSON(val interface{}) {
	out, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("could not marshal records to json")
	}
	fmt.Fprintln(os.Stdout, string(out))
}

func renderMarkdown(doc string) {
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)

	out, err := r.Render(doc)
	if err != nil {
		log.Fatal().Err(err).Msg("could not render document")
	}

	fmt.Print(out)
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showEarningsCmd, showFilingsCmd, showRecommendationsCmd, showHoldingsCmd)

	showCmd.PersistentFlags().BoolVar(&showJSON, "json", false, "print records as json")
	showHoldingsCmd.Flags().IntVarP(&showTop, "top", "n", 0, "number of positions to show (default is the filer's configured top N)")
}
