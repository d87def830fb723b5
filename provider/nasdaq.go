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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/library"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const (
	nasdaqURLDateFormat = "2006-Jan-2"
	nasdaqNoData        = "No data available"
	nasdaqRowValues     = 8
	nasdaqSkipRows      = 4
)

type Nasdaq struct{}

type nasdaqConfig struct {
	FetchConfig `config:",squash"`
	BaseURL     string `config:"base_url" default:"http://www.nasdaq.com/earnings/earnings-calendar.aspx" validate:"url"`
	StartDate   string `config:"start_date" default:"2013-01-03" validate:"datetime=2006-01-02"`
	MaxDays     int    `config:"max_days" validate:"gte=0"`
}

func (nasdaq *Nasdaq) Name() string {
	return "Nasdaq"
}

func (nasdaq *Nasdaq) ConfigDescription() map[string]string {
	return map[string]string{
		"base_url":   "Earnings calendar page; defaults to the nasdaq.com calendar",
		"start_date": "First day to download when nothing is stored yet (YYYY-MM-DD)",
		"max_days":   "Maximum number of days to download in one run (0 for no limit)",
		"browser":    "Load pages with a headless browser instead of plain HTTP",
		"rate":       "Requests per second",
		"retries":    "Attempts after a rate limited or failed request before the run stops",
		"retry_wait": "Wait before the first retry, e.g. 1s; later retries back off",
	}
}

func (nasdaq *Nasdaq) Description() string {
	return `Nasdaq publishes a daily earnings calendar listing the companies that
report each day along with the consensus EPS forecast, number of estimates,
reported EPS and the surprise percentage.`
}

func (nasdaq *Nasdaq) Datasets() map[string]Dataset {
	return map[string]Dataset{
		"Earnings Calendar": {
			Name:        "Earnings Calendar",
			Description: "Daily earnings announcements with EPS forecast, actual and surprise.",
			DataTypes:   []*data.DataType{data.DataTypes[data.EarningsKey]},
			DateRange: func() (time.Time, time.Time) {
				return time.Date(2013, 1, 3, 0, 0, 0, 0, time.UTC), time.Now()
			},
			NewConfig: func() interface{} { return &nasdaqConfig{} },
			Fetch:     downloadEarnings,
		},
	}
}

func downloadEarnings(ctx context.Context, subscription *library.Subscription, out chan<- *data.Observation, exitNotification chan<- data.RunSummary) {
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

	cfg := &nasdaqConfig{}
	if err := DecodeConfig(subscription.Config, cfg); err != nil {
		logger.Error().Err(err).Msg("could not decode subscription config")
		runSummary.Status = data.RunFailed
		return
	}

	fetcher, err := cfg.NewFetcher("nasdaq.user_agent")
	if err != nil {
		logger.Error().Err(err).Msg("could not create fetcher")
		runSummary.Status = data.RunFailed
		return
	}
	defer fetcher.Close()

	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("could not acquire database connection")
		runSummary.Status = data.RunFailed
		return
	}

	lastDate, err := data.LastEarningsDate(ctx, subscription.DataTablesMap[data.EarningsKey], conn)
	conn.Release()
	if err != nil {
		logger.Error().Err(err).Msg("could not read last stored earnings date")
		runSummary.Status = data.RunFailed
		return
	}

	startDate, _ := time.Parse("2006-01-02", cfg.StartDate)
	startDate = earningsStartDate(lastDate, startDate)

	now := time.Now()
	endDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	logger.Info().Time("StartDate", startDate).Time("EndDate", endDate).Msg("downloading earnings calendar")

	tickers := make(map[string]struct{})
	numDays := 0
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		if cfg.MaxDays > 0 && numDays >= cfg.MaxDays {
			logger.Info().Int("MaxDays", cfg.MaxDays).Msg("reached maximum number of days for this run")
			break
		}
		numDays++

		pageURL := nasdaqDayURL(cfg.BaseURL, day)
		body, err := fetcher.Get(ctx, pageURL)
		if err != nil {
			// later days are not fetched so the stored checkpoint never skips over this one
			logger.Error().Err(err).Str("Url", pageURL).Time("Day", day).Msg("could not download earnings calendar")
			runSummary.Status = data.RunFailed
			break
		}

		records, err := ParseEarningsCalendar(ctx, body, day)
		if err != nil {
			logger.Error().Err(err).Time("Day", day).Msg("could not parse earnings calendar")
			runSummary.Status = data.RunFailed
			break
		}

		for _, record := range records {
			if err := data.Validate(record); err != nil {
				logger.Warn().Err(err).Object("Earnings", record).Msg("skipping invalid earnings record")
				continue
			}

			out <- &data.Observation{
				Earnings:         record,
				ObservationDate:  day,
				SubscriptionID:   subscription.ID,
				SubscriptionName: subscription.Name,
			}

			tickers[record.Ticker] = struct{}{}
			runSummary.Track(day)
		}

		logger.Debug().Time("Day", day).Int("NumRecords", len(records)).Msg("parsed earnings calendar")
	}

	runSummary.NumSecurities = len(tickers)
}

// earningsStartDate returns the first day to download. Once anything is
// stored the download resumes the day after the last stored event.
func earningsStartDate(lastStored, configured time.Time) time.Time {
	if lastStored.IsZero() {
		return configured
	}
	lastStored = time.Date(lastStored.Year(), lastStored.Month(), lastStored.Day(), 0, 0, 0, 0, time.UTC)
	return lastStored.AddDate(0, 0, 1)
}

func nasdaqDayURL(baseURL string, day time.Time) string {
	return fmt.Sprintf("%s?date=%s", baseURL, day.Format(nasdaqURLDateFormat))
}

// ParseEarningsCalendar extracts the earnings rows of a single calendar page
func ParseEarningsCalendar(ctx context.Context, body []byte, day time.Time) ([]*data.Earnings, error) {
	logger := zerolog.Ctx(ctx)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	rows := doc.Find("tr")
	if rows.Length() <= nasdaqSkipRows {
		return nil, nil
	}

	records := make([]*data.Earnings, 0)
	rows.Slice(nasdaqSkipRows, goquery.ToEnd).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		values, ticker, complete := earningsRowValues(row)
		if !complete {
			logger.Debug().Strs("Values", values).Msg("earnings row uses an unknown layout; ending page")
			return false
		}

		if len(values) == 0 {
			return true
		}

		if strings.Contains(values[0], nasdaqNoData) {
			return false
		}

		if ticker == "" {
			logger.Debug().Strs("Values", values).Msg("earnings row has no ticker")
			return true
		}

		if len(values) != nasdaqRowValues {
			logger.Warn().Strs("Values", values).Str("Ticker", ticker).Msg("unexpected number of values in earnings row; trimming to ticker")
			for len(values) > 0 && values[0] != ticker {
				values = values[1:]
			}
			if len(values) != nasdaqRowValues {
				logger.Warn().Strs("Values", values).Str("Ticker", ticker).Msg("could not recover earnings row")
				return true
			}
		}

		// third from last is the date of the year-ago report
		values = append(values[:nasdaqRowValues-3], values[nasdaqRowValues-2:]...)

		records = append(records, &data.Earnings{
			EventDate: day,
			Ticker:    values[0],
			Quarter:   values[2],
			Forecast:  parseMoney(values[3]),
			Estimates: parseCount(values[4]),
			Actual:    parseMoney(values[5]),
			Surprise:  parseMoney(values[6]),
		})

		return true
	})

	return records, nil
}

// earningsRowValues returns the text of each cell in the row and the ticker
// found in the company cell. complete is false when a cell has neither one
// nor three child nodes; the calendar ends at such a row.
func earningsRowValues(row *goquery.Selection) (values []string, ticker string, complete bool) {
	values = make([]string, 0, nasdaqRowValues)
	complete = true

	row.Children().EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		contents := cell.Contents()
		switch contents.Length() {
		case 1:
			values = append(values, strippedStrings(cell)...)
		case 3:
			text := contents.Eq(1).Contents().First().Text()
			if open := strings.LastIndex(text, "("); open >= 0 {
				text, _, _ = strings.Cut(text[open+1:], ")")
				ticker = text
			}
			values = append(values, text)
		default:
			complete = false
			return false
		}
		return true
	})

	return values, ticker, complete
}

// strippedStrings returns every non-blank text node below the selection
func strippedStrings(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				out = append(out, text)
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	for _, node := range sel.Nodes {
		walk(node)
	}

	return out
}

// parseMoney converts a dollar or percent amount to a float. Amounts in
// parenthesis are negative, "Met" is zero, and anything unparsable is nil.
func parseMoney(value string) *float64 {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "n/a", "na", "--", "-":
		return nil
	case "met":
		zero := 0.0
		return &zero
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = value[1 : len(value)-1]
	}

	value = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(value)
	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}

	if negative {
		num = -num
	}

	return &num
}

func parseCount(value string) int32 {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	num, err := strconv.ParseInt(value, 10, 32)
	if err != nil || num < 0 {
		return 0
	}
	return int32(num)
}
