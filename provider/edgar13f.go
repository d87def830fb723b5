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
package provider

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/edgar"
	"github.com/penny-vault/pvscrape/figi"
	"github.com/penny-vault/pvscrape/library"
	"github.com/rs/zerolog"
)

type Edgar struct{}

type edgarConfig struct {
	FetchConfig `config:",squash"`
	BaseURL     string   `config:"base_url" default:"https://www.sec.gov" validate:"url"`
	Filers      []string `config:"filers"`
	SkipStale   bool     `config:"skip_stale" default:"true"`
	EnrichFigi  bool     `config:"enrich_figi" default:"true"`
}

// Check verifies the filer list
func (cfg *edgarConfig) Check() error {
	_, err := edgar.ParseFilers(cfg.Filers)
	return err
}

// filers returns the configured filers or the defaults when none are set
func (cfg *edgarConfig) filers() []edgar.Filer {
	filers, err := edgar.ParseFilers(cfg.Filers)
	if err != nil || len(filers) == 0 {
		return edgar.DefaultFilers
	}
	return filers
}

// EdgarFilers returns the investment managers followed by a 13F
// subscription with the given config
func EdgarFilers(config map[string]string) ([]edgar.Filer, error) {
	cfg := &edgarConfig{}
	if err := DecodeConfig(config, cfg); err != nil {
		return nil, err
	}
	return cfg.filers(), nil
}

func (provider *Edgar) Name() string {
	return "EDGAR"
}

func (provider *Edgar) ConfigDescription() map[string]string {
	return map[string]string{
		"filers":      "Comma separated name:cik:top entries (blank for the default list of investors)",
		"skip_stale":  "Skip reports filed before the end of the last quarter (true/false)",
		"enrich_figi": "Look up the ticker and composite FIGI of each holding on OpenFIGI (true/false)",
		"base_url":    "SEC EDGAR site",
		"retries":     "Attempts after a rate limited or failed request",
	}
}

func (provider *Edgar) Description() string {
	return `The SEC EDGAR system publishes the quarterly 13F-HR reports institutional
investment managers file to disclose their US equity holdings.`
}

func (provider *Edgar) Datasets() map[string]Dataset {
	return map[string]Dataset{
		"13F Holdings": {
			Name:        "13F Holdings",
			Description: "Latest 13F information table of each followed investment manager.",
			DataTypes:   []*data.DataType{data.DataTypes[data.HoldingsKey]},
			DateRange: func() (time.Time, time.Time) {
				return time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), time.Now()
			},
			NewConfig: func() interface{} { return &edgarConfig{} },
			Fetch:     downloadHoldings,
		},
	}
}

func downloadHoldings(ctx context.Context, subscription *library.Subscription, out chan<- *data.Observation, exitNotification chan<- data.RunSummary) {
	logger := zerolog.Ctx(ctx)
	runSummary := data.RunSummary{
		StartTime:        time.Now(),
		SubscriptionID:   subscription.ID,
		SubscriptionName: subscription.Name,
		Status:           data.RunSuccess,
	}

	defer func() {
		runSummary.EndTime = time.Now()
		exitNotification <- runSummary
	}()

	cfg := &edgarConfig{}
	if err := DecodeConfig(subscription.Config, cfg); err != nil {
		logger.Error().Err(err).Msg("could not decode subscription config")
		runSummary.Status = data.RunFailed
		return
	}

	fetcher, err := cfg.NewFetcher("edgar.user_agent")
	if err != nil {
		logger.Error().Err(err).Msg("could not create fetcher")
		runSummary.Status = data.RunFailed
		return
	}
	defer fetcher.Close()

	client := edgar.NewClient(fetcher)
	client.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("could not acquire database connection")
		runSummary.Status = data.RunFailed
		return
	}
	defer conn.Release()

	tbl := subscription.DataTablesMap[data.HoldingsKey]
	if cfg.EnrichFigi {
		figi.LoadCacheFromDB(ctx, conn, tbl)
	}

	lastQuarter := edgar.LastEndedQuarter(time.Now())
	securities := make(map[string]struct{})

	for _, filer := range cfg.filers() {
		filerLogger := logger.With().Str("Filer", filer.Name).Str("CIK", filer.CIK).Logger()

		filings, err := client.Filings(ctx, filer.CIK, edgar.Form13F, time.Time{})
		if err != nil {
			filerLogger.Error().Err(err).Msg("could not list 13F filings")
			runSummary.Status = data.RunFailed
			continue
		}

		if len(filings) == 0 {
			filerLogger.Warn().Msg("filer has no 13F filings")
			continue
		}

		latest := filings[0]
		if skipFiling(latest, lastQuarter, cfg.SkipStale) {
			filerLogger.Info().Time("FilingDate", latest.FilingDate).Time("LastQuarterEnd", lastQuarter).Msg("latest 13F predates the last quarter end; skipping")
			continue
		}

		holdings, err := client.Holdings(ctx, latest)
		if err != nil {
			filerLogger.Error().Err(err).Str("Url", latest.DocumentsURL).Msg("could not read 13F holdings")
			runSummary.Status = data.RunFailed
			continue
		}

		for _, holding := range holdings {
			holding.FilerCIK = filer.CIK
			holding.FilerName = filer.Name
		}

		holdings = slices.DeleteFunc(holdings, func(holding *data.Holding) bool {
			if err := data.Validate(holding); err != nil {
				filerLogger.Warn().Err(err).Object("Holding", holding).Msg("skipping invalid holding")
				return true
			}
			return false
		})

		if len(holdings) == 0 {
			filerLogger.Warn().Str("Url", latest.DocumentsURL).Msg("13F has no holdings")
			continue
		}

		reportDate := holdings[0].ReportDate
		storedLines, err := data.StoredReportLines(ctx, tbl, conn, filer.CIK)
		if err != nil {
			filerLogger.Error().Err(err).Msg("could not read stored reports")
			runSummary.Status = data.RunFailed
			continue
		}

		if reportStored(storedLines, reportDate, len(holdings)) {
			filerLogger.Info().Time("ReportDate", reportDate).Msg("report already stored")
			continue
		}

		if cfg.EnrichFigi {
			figi.Enrich(ctx, holdings...)
		}

		for _, holding := range holdings {
			out <- &data.Observation{
				Holding:          holding,
				ObservationDate:  holding.ReportDate,
				SubscriptionID:   subscription.ID,
				SubscriptionName: subscription.Name,
			}

			securities[holding.Cusip] = struct{}{}
			runSummary.Track(holding.ReportDate)
		}

		filerLogger.Info().Time("ReportDate", reportDate).Int("NumHoldings", len(holdings)).Msg("imported 13F holdings")
	}

	runSummary.NumSecurities = len(securities)
}

// skipFiling reports whether a filer's latest 13F is older than the last
// ended quarter and stale filings are not wanted
func skipFiling(latest *edgar.Filing, lastQuarter time.Time, skipStale bool) bool {
	return skipStale && latest.FilingDate.Before(lastQuarter)
}

// reportStored reports whether all numLines lines of the report dated
// reportDate are already saved. A partially saved report is imported again.
func reportStored(storedLines map[string]int, reportDate time.Time, numLines int) bool {
	return storedLines[reportDate.Format(time.DateOnly)] >= numLines
}
