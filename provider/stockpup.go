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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocarina/gocsv"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/edgar"
	"github.com/penny-vault/pvscrape/library"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const stockpupFileSuffix = "quarterly_financial_data.csv"

var ErrUnknownDateFormat = errors.New("unknown date format")

type Stockpup struct{}

type stockpupConfig struct {
	FetchConfig       `config:",squash"`
	BaseURL           string        `config:"base_url" default:"http://www.stockpup.com/data/" validate:"url"`
	EdgarURL          string        `config:"edgar_url" default:"https://www.sec.gov" validate:"url"`
	Tickers           []string      `config:"tickers"`
	TickerInterval    time.Duration `config:"ticker_interval" default:"5s"`
	LookupFilingDates bool          `config:"lookup_filing_dates" default:"true"`
}

// stockpupRow is a line of a stockpup quarterly financial data file. Price,
// Price high and Price low are not kept.
type stockpupRow struct {
	QuarterEnd                 string `csv:"Quarter end"`
	Shares                     string `csv:"Shares"`
	SharesSplitAdjusted        string `csv:"Shares split adjusted"`
	SplitFactor                string `csv:"Split factor"`
	Assets                     string `csv:"Assets"`
	CurrentAssets              string `csv:"Current Assets"`
	Liabilities                string `csv:"Liabilities"`
	CurrentLiabilities         string `csv:"Current Liabilities"`
	ShareholdersEquity         string `csv:"Shareholders equity"`
	NonControllingInterest     string `csv:"Non-controlling interest"`
	PreferredEquity            string `csv:"Preferred equity"`
	GoodwillAndIntangibles     string `csv:"Goodwill & intangibles"`
	LongTermDebt               string `csv:"Long-term debt"`
	Revenue                    string `csv:"Revenue"`
	Earnings                   string `csv:"Earnings"`
	EarningsAvailableForCommon string `csv:"Earnings available for common stockholders"`
	EPSBasic                   string `csv:"EPS basic"`
	EPSDiluted                 string `csv:"EPS diluted"`
	DividendPerShare           string `csv:"Dividend per share"`
	OperatingCash              string `csv:"Cash from operating activities"`
	InvestingCash              string `csv:"Cash from investing activities"`
	FinancingCash              string `csv:"Cash from financing activities"`
	CashChange                 string `csv:"Cash change during period"`
	CashAtEnd                  string `csv:"Cash at end of period"`
	Capex                      string `csv:"Capital expenditures"`
	ROE                        string `csv:"ROE"`
	ROA                        string `csv:"ROA"`
	BookValuePerShare          string `csv:"Book value of equity per share"`
	PriceToBook                string `csv:"P/B ratio"`
	PriceToEarnings            string `csv:"P/E ratio"`
	CumDividendsPerShare       string `csv:"Cumulative dividends per share"`
	DividendPayoutRatio        string `csv:"Dividend payout ratio"`
	LongTermDebtToEquity       string `csv:"Long-term debt to equity ratio"`
	EquityToAssets             string `csv:"Equity to assets ratio"`
	NetMargin                  string `csv:"Net margin"`
	AssetTurnover              string `csv:"Asset turnover"`
	FreeCashFlowPerShare       string `csv:"Free cash flow per share"`
	CurrentRatio               string `csv:"Current ratio"`
}

// StockpupFile is a per company download listed on the stockpup index
type StockpupFile struct {
	Ticker string
	URL    string
}

func (stockpup *Stockpup) Name() string {
	return "Stockpup"
}

func (stockpup *Stockpup) ConfigDescription() map[string]string {
	return map[string]string{
		"base_url":            "Directory listing the quarterly financial data files",
		"edgar_url":           "SEC EDGAR site used to look up filing dates",
		"tickers":             "Comma separated list of tickers to import (blank for all)",
		"ticker_interval":     "Minimum time between tickers, e.g. 5s",
		"lookup_filing_dates": "Look up the filing date of each quarter on EDGAR (true/false)",
	}
}

func (stockpup *Stockpup) Description() string {
	return `Stockpup publishes cleaned up quarterly fundamentals for several hundred
US companies going back to the 1990s. The date each quarter was filed with the
SEC is looked up on EDGAR.`
}

func (stockpup *Stockpup) Datasets() map[string]Dataset {
	return map[string]Dataset{
		"Quarterly Fundamentals": {
			Name:        "Quarterly Fundamentals",
			Description: "Balance sheet, income statement and cash flow items per fiscal quarter.",
			DataTypes:   []*data.DataType{data.DataTypes[data.FilingsKey]},
			DateRange: func() (time.Time, time.Time) {
				return time.Date(1993, 1, 1, 0, 0, 0, 0, time.UTC), time.Now()
			},
			NewConfig: func() interface{} { return &stockpupConfig{} },
			Fetch:     downloadFundamentals,
		},
	}
}

func downloadFundamentals(ctx context.Context, subscription *library.Subscription, out chan<- *data.Observation, exitNotification chan<- data.RunSummary) {
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

	cfg := &stockpupConfig{}
	if err := DecodeConfig(subscription.Config, cfg); err != nil {
		logger.Error().Err(err).Msg("could not decode subscription config")
		runSummary.Status = data.RunFailed
		return
	}

	fetcher, err := cfg.NewFetcher("stockpup.user_agent")
	if err != nil {
		logger.Error().Err(err).Msg("could not create fetcher")
		runSummary.Status = data.RunFailed
		return
	}
	defer fetcher.Close()

	edgarFetch := cfg.FetchConfig
	edgarFetch.Browser = false
	edgarFetcher, err := edgarFetch.NewFetcher("edgar.user_agent")
	if err != nil {
		logger.Error().Err(err).Msg("could not create EDGAR fetcher")
		runSummary.Status = data.RunFailed
		return
	}
	defer edgarFetcher.Close()

	edgarClient := edgar.NewClient(edgarFetcher)
	edgarClient.BaseURL = strings.TrimSuffix(cfg.EdgarURL, "/")

	index, err := fetcher.Get(ctx, cfg.BaseURL)
	if err != nil {
		logger.Error().Err(err).Str("Url", cfg.BaseURL).Msg("could not download stockpup index")
		runSummary.Status = data.RunFailed
		return
	}

	files, err := ParseStockpupIndex(index, cfg.BaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("could not parse stockpup index")
		runSummary.Status = data.RunFailed
		return
	}

	files = filterStockpupFiles(files, cleanList(cfg.Tickers))
	logger.Info().Int("NumFiles", len(files)).Msg("found quarterly financial data files")

	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("could not acquire database connection")
		runSummary.Status = data.RunFailed
		return
	}
	defer conn.Release()

	limiter := rate.NewLimiter(rate.Every(cfg.TickerInterval), 1)
	tbl := subscription.DataTablesMap[data.FilingsKey]

	for _, file := range files {
		if err := limiter.Wait(ctx); err != nil {
			logger.Error().Err(err).Msg("run cancelled")
			runSummary.Status = data.RunFailed
			return
		}

		tickerLogger := logger.With().Str("Ticker", file.Ticker).Logger()

		body, err := fetcher.Get(ctx, file.URL)
		if err != nil {
			tickerLogger.Error().Err(err).Str("Url", file.URL).Msg("could not download quarterly financial data")
			runSummary.Status = data.RunFailed
			continue
		}

		filings, err := ParseStockpupCSV(body, file.Ticker)
		if err != nil {
			tickerLogger.Error().Err(err).Msg("could not parse quarterly financial data")
			runSummary.Status = data.RunFailed
			continue
		}

		lastQuarter, err := data.LastQuarterEnd(ctx, tbl, conn, file.Ticker)
		if err != nil {
			tickerLogger.Error().Err(err).Msg("could not read last stored quarter")
			runSummary.Status = data.RunFailed
			continue
		}

		pending := filingsAfter(filings, lastQuarter)
		tickerLogger.Info().Time("LastQuarterEnd", lastQuarter).Int("NumPending", len(pending)).Msg("importing quarters")
		if len(pending) == 0 {
			continue
		}

		if cfg.LookupFilingDates {
			cik := edgarClient.CIK(ctx, file.Ticker)
			resolveFilingDates(tickerLogger.WithContext(ctx), edgarClient, cik, pending, time.Now())
		}

		for _, filing := range pending {
			if err := data.Validate(filing); err != nil {
				tickerLogger.Warn().Err(err).Time("QuarterEnd", filing.QuarterEnd).Msg("skipping invalid filing")
				continue
			}

			out <- &data.Observation{
				Filing:           filing,
				ObservationDate:  filing.QuarterEnd,
				SubscriptionID:   subscription.ID,
				SubscriptionName: subscription.Name,
			}

			runSummary.Track(filing.QuarterEnd)
		}

		runSummary.NumSecurities++
	}
}

// filingDateLookup finds the date of the most recent filing of a form family
type filingDateLookup interface {
	FilingDate(ctx context.Context, cik, formPrefix string, before time.Time) (time.Time, error)
}

// resolveFilingDates sets the filing date of each quarter from EDGAR and
// returns the number of quarters whose date could not be found. Those keep
// a nil filing date.
func resolveFilingDates(ctx context.Context, lookup filingDateLookup, cik string, filings []*data.Filing, now time.Time) int {
	logger := zerolog.Ctx(ctx)
	missing := 0
	for idx, filing := range filings {
		filing.FilingDate = nil

		filingDate, err := lookup.FilingDate(ctx, cik, edgar.FormQuarterlyOrAnnual, filingDateProxy(filings, idx, now))
		if err != nil {
			logger.Warn().Err(err).Time("QuarterEnd", filing.QuarterEnd).Msg("could not find filing date")
			missing++
			continue
		}

		filing.FilingDate = &filingDate
	}
	return missing
}

// filingDateProxy returns the date a quarter must have been filed by: the
// end of the following quarter, or now for the latest one
func filingDateProxy(filings []*data.Filing, idx int, now time.Time) time.Time {
	if idx+1 < len(filings) {
		return filings[idx+1].QuarterEnd
	}
	return now
}

// filingsAfter returns the filings with a quarter end after last; filings
// must be sorted by quarter end
func filingsAfter(filings []*data.Filing, last time.Time) []*data.Filing {
	if last.IsZero() {
		return filings
	}
	for idx, filing := range filings {
		if filing.QuarterEnd.After(last) {
			return filings[idx:]
		}
	}
	return nil
}

func filterStockpupFiles(files []*StockpupFile, tickers []string) []*StockpupFile {
	if len(tickers) == 0 {
		return files
	}

	wanted := make(map[string]bool, len(tickers))
	for _, ticker := range tickers {
		wanted[strings.ToUpper(ticker)] = true
	}

	filtered := make([]*StockpupFile, 0, len(tickers))
	for _, file := range files {
		if wanted[strings.ToUpper(file.Ticker)] {
			filtered = append(filtered, file)
		}
	}
	return filtered
}

// ParseStockpupIndex returns the quarterly financial data files linked from
// the index page
func ParseStockpupIndex(body []byte, baseURL string) ([]*StockpupFile, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	files := make([]*StockpupFile, 0)
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, stockpupFileSuffix) {
			return
		}

		fileName := path.Base(href)
		ticker, _, _ := strings.Cut(fileName, "_")
		if ticker == "" || seen[ticker] {
			return
		}
		seen[ticker] = true

		files = append(files, &StockpupFile{
			Ticker: ticker,
			URL:    base.JoinPath(fileName).String(),
		})
	})

	return files, nil
}

// ParseStockpupCSV converts a quarterly financial data file to filings
// sorted by quarter end
func ParseStockpupCSV(body []byte, ticker string) ([]*data.Filing, error) {
	rows := []*stockpupRow{}
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, err
	}

	filings := make([]*data.Filing, 0, len(rows))
	for _, row := range rows {
		quarterEnd, err := parseStockpupDate(row.QuarterEnd)
		if err != nil {
			return nil, err
		}

		filings = append(filings, row.filing(ticker, quarterEnd))
	}

	slices.SortFunc(filings, func(a, b *data.Filing) int {
		return a.QuarterEnd.Compare(b.QuarterEnd)
	})

	return filings, nil
}

func (row *stockpupRow) filing(ticker string, quarterEnd time.Time) *data.Filing {
	return &data.Filing{
		Ticker:                     ticker,
		QuarterEnd:                 quarterEnd,
		Shares:                     optionalInt(row.Shares),
		SharesSplitAdjusted:        optionalInt(row.SharesSplitAdjusted),
		SplitFactor:                optionalFloat(row.SplitFactor),
		Assets:                     optionalFloat(row.Assets),
		CurrentAssets:              optionalFloat(row.CurrentAssets),
		Liabilities:                optionalFloat(row.Liabilities),
		CurrentLiabilities:         optionalFloat(row.CurrentLiabilities),
		ShareholdersEquity:         optionalFloat(row.ShareholdersEquity),
		NonControllingInterest:     optionalFloat(row.NonControllingInterest),
		PreferredEquity:            optionalFloat(row.PreferredEquity),
		GoodwillAndIntangibles:     optionalFloat(row.GoodwillAndIntangibles),
		LongTermDebt:               optionalFloat(row.LongTermDebt),
		Revenue:                    optionalFloat(row.Revenue),
		Earnings:                   optionalFloat(row.Earnings),
		EarningsAvailableForCommon: optionalFloat(row.EarningsAvailableForCommon),
		EPSBasic:                   optionalFloat(row.EPSBasic),
		EPSDiluted:                 optionalFloat(row.EPSDiluted),
		DividendPerShare:           optionalFloat(row.DividendPerShare),
		OperatingCash:              optionalFloat(row.OperatingCash),
		InvestingCash:              optionalFloat(row.InvestingCash),
		FinancingCash:              optionalFloat(row.FinancingCash),
		CashChange:                 optionalFloat(row.CashChange),
		CashAtEnd:                  optionalFloat(row.CashAtEnd),
		Capex:                      optionalFloat(row.Capex),
		ROE:                        optionalFloat(row.ROE),
		ROA:                        optionalFloat(row.ROA),
		BookValuePerShare:          optionalFloat(row.BookValuePerShare),
		PriceToBook:                optionalFloat(row.PriceToBook),
		PriceToEarnings:            optionalFloat(row.PriceToEarnings),
		CumDividendsPerShare:       optionalFloat(row.CumDividendsPerShare),
		DividendPayoutRatio:        optionalFloat(row.DividendPayoutRatio),
		LongTermDebtToEquity:       optionalFloat(row.LongTermDebtToEquity),
		EquityToAssets:             optionalFloat(row.EquityToAssets),
		NetMargin:                  optionalFloat(row.NetMargin),
		AssetTurnover:              optionalFloat(row.AssetTurnover),
		FreeCashFlowPerShare:       optionalFloat(row.FreeCashFlowPerShare),
		CurrentRatio:               optionalFloat(row.CurrentRatio),
	}
}

// parseStockpupDate accepts ISO dates and day first dates
func parseStockpupDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006"} {
		if dt, err := time.Parse(layout, value); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDateFormat, value)
}

func optionalFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "None") {
		return nil
	}

	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &num
}

func optionalInt(value string) *int64 {
	num := optionalFloat(value)
	if num == nil {
		return nil
	}
	shares := int64(*num)
	return &shares
}
