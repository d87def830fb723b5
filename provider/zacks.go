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
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/fetch"
	"github.com/penny-vault/pvscrape/library"
	"github.com/rs/zerolog"
)

const (
	ZacksResearchURL = "https://www.zacks.com/stock/research"

	// the average broker recommendation row keeps extra markup after its label
	zacksABRRow = 12
)

var (
	ErrNoRecommendation = errors.New("page has no brokerage recommendation")

	zacksRows = []int{zacksABRRow, 14, 15, 17, 18}
)

type Zacks struct{}

type zacksConfig struct {
	FetchConfig `config:",squash"`
	BaseURL     string   `config:"base_url" default:"https://www.zacks.com/stock/research" validate:"url"`
	Tickers     []string `config:"tickers" validate:"min=1"`
}

func (zacks *Zacks) Name() string {
	return "Zacks"
}

func (zacks *Zacks) ConfigDescription() map[string]string {
	return map[string]string{
		"tickers":  "Comma separated list of tickers to follow",
		"base_url": "Zacks stock research site",
		"browser":  "Load pages with a headless browser instead of plain HTTP",
		"rate":     "Requests per second",
	}
}

func (zacks *Zacks) Description() string {
	return `Zacks collects brokerage recommendations for US stocks and publishes the
average broker recommendation (ABR), the number of recommendations, the average
price target and the industry rank of each stock.`
}

func (zacks *Zacks) Datasets() map[string]Dataset {
	return map[string]Dataset{
		"Brokerage Recommendations": {
			Name:        "Brokerage Recommendations",
			Description: "Daily snapshot of the analyst consensus for a list of tickers.",
			DataTypes:   []*data.DataType{data.DataTypes[data.RecommendationKey]},
			DateRange: func() (time.Time, time.Time) {
				return time.Now(), time.Now()
			},
			NewConfig: func() interface{} { return &zacksConfig{} },
			Fetch:     downloadRecommendations,
		},
	}
}

func downloadRecommendations(ctx context.Context, subscription *library.Subscription, out chan<- *data.Observation, exitNotification chan<- data.RunSummary) {
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

	cfg := &zacksConfig{}
	if err := DecodeConfig(subscription.Config, cfg); err != nil {
		logger.Error().Err(err).Msg("could not decode subscription config")
		runSummary.Status = data.RunFailed
		return
	}

	fetcher, err := cfg.NewFetcher("zacks.user_agent")
	if err != nil {
		logger.Error().Err(err).Msg("could not create fetcher")
		runSummary.Status = data.RunFailed
		return
	}
	defer fetcher.Close()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, ticker := range cleanList(cfg.Tickers) {
		rec, err := FetchRecommendation(ctx, fetcher, cfg.BaseURL, ticker, today)
		if err != nil {
			logger.Error().Err(err).Str("Ticker", ticker).Msg("could not download brokerage recommendation")
			runSummary.Status = data.RunFailed
			continue
		}

		if err := data.Validate(rec); err != nil {
			logger.Warn().Err(err).Str("Ticker", ticker).Msg("skipping invalid recommendation")
			continue
		}

		out <- &data.Observation{
			Recommendation:   rec,
			ObservationDate:  today,
			SubscriptionID:   subscription.ID,
			SubscriptionName: subscription.Name,
		}

		runSummary.Track(today)
		runSummary.NumSecurities++
	}
}

// FetchRecommendation downloads the brokerage recommendation page of ticker
func FetchRecommendation(ctx context.Context, fetcher fetch.Fetcher, baseURL, ticker string, day time.Time) (*data.Recommendation, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	pageURL := fmt.Sprintf("%s/%s/brokerage-recommendations", strings.TrimSuffix(baseURL, "/"), ticker)

	body, err := fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	return ParseRecommendation(body, ticker, day)
}

// ParseRecommendation reads the label and value pairs of the brokerage
// recommendation table
func ParseRecommendation(body []byte, ticker string, day time.Time) (*data.Recommendation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	rows := doc.Find("tr")
	details := make(map[string]string)
	for _, idx := range zacksRows {
		if idx >= rows.Length() {
			break
		}
		if label, value, ok := recommendationPair(rows.Eq(idx), idx == zacksABRRow); ok {
			details[label] = value
		}
	}

	rec := &data.Recommendation{
		Ticker:    ticker,
		EventDate: day,
		Details:   details,
	}

	if applyDetails(rec) == 0 {
		// rows moved; fall back to every two column row on the page
		details = make(map[string]string)
		rows.Each(func(_ int, row *goquery.Selection) {
			if label, value, ok := recommendationPair(row, true); ok {
				if _, seen := details[label]; !seen {
					details[label] = value
				}
			}
		})
		rec.Details = details
		if applyDetails(rec) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoRecommendation, ticker)
		}
	}

	return rec, nil
}

// recommendationPair returns the label and value held by the first two cells
// of row. When firstNode is set only the first non-blank node of the label
// cell is used.
func recommendationPair(row *goquery.Selection, firstNode bool) (string, string, bool) {
	cells := row.Children()
	if cells.Length() < 2 {
		return "", "", false
	}

	labelCell := cells.Eq(0)
	label := labelCell.Text()
	if firstNode {
		labelCell.Contents().EachWithBreak(func(_ int, node *goquery.Selection) bool {
			label = node.Text()
			return strings.TrimSpace(label) == ""
		})
	}

	label = strings.Join(strings.Fields(label), " ")
	value := strings.Join(strings.Fields(cells.Eq(1).Text()), " ")
	if label == "" {
		return "", "", false
	}

	return label, value, true
}

// applyDetails sets the typed fields of rec from its details and returns the
// number of labels recognised
func applyDetails(rec *data.Recommendation) int {
	rec.ABR = nil
	rec.NumRecommendations = nil
	rec.AverageTargetPrice = nil
	rec.Industry = nil
	rec.IndustryRank = nil

	recognised := 0
	for label, value := range rec.Details {
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "# of rec") || strings.Contains(lower, "number of rec"):
			count, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 32)
			if err == nil {
				num := int32(count)
				rec.NumRecommendations = &num
			}
		case lower == "abr" || strings.HasPrefix(lower, "average broker recommendation"):
			rec.ABR = parseMoney(value)
		case strings.Contains(lower, "average target price"):
			rec.AverageTargetPrice = parseMoney(value)
		case strings.Contains(lower, "industry rank"):
			rank := value
			rec.IndustryRank = &rank
		case strings.Contains(lower, "industry"):
			industry := value
			rec.Industry = &industry
		default:
			continue
		}
		recognised++
	}

	return recognised
}
