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
package edgar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/penny-vault/pvscrape/fetch"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://www.sec.gov"

	Form13F = "13F-HR"

	// FormQuarterlyOrAnnual matches both 10-K and 10-Q filings
	FormQuarterlyOrAnnual = "10-"

	beforeDateFormat = "20060102"
	filingDateFormat = "2006-01-02"
	maxListing       = "100"
)

var (
	ErrNoFilings      = errors.New("no filings found")
	ErrNoSubmission   = errors.New("documents page has no full submission text")
	ErrNoReportPeriod = errors.New("submission is missing PERIOD OF REPORT")
)

// Filing is a row of the EDGAR company browse listing
type Filing struct {
	Form         string
	FilingDate   time.Time
	DocumentsURL string
}

type Client struct {
	BaseURL string
	fetcher fetch.Fetcher

	mu   sync.Mutex
	ciks map[string]string
}

func NewClient(fetcher fetch.Fetcher) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		fetcher: fetcher,
	}
}

func (client *Client) listingURL(cik, form string, before time.Time) string {
	params := url.Values{}
	params.Set("action", "getcompany")
	params.Set("CIK", cik)
	params.Set("type", form)
	if !before.IsZero() {
		params.Set("dateb", before.Format(beforeDateFormat))
	} else {
		params.Set("dateb", "")
	}
	params.Set("owner", "exclude")
	if form == Form13F {
		params.Set("count", "")
		params.Set("hidefilings", "0")
	} else {
		params.Set("count", maxListing)
	}

	return fmt.Sprintf("%s/cgi-bin/browse-edgar?%s", client.BaseURL, params.Encode())
}

func (client *Client) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return client.BaseURL + href
}

// Filings lists the filings of cik with the given form that were filed
// before the given date. A form ending in "-" matches the whole family. A
// zero before lists the latest filings.
func (client *Client) Filings(ctx context.Context, cik, form string, before time.Time) ([]*Filing, error) {
	listing := client.listingURL(cik, form, before)
	body, err := client.fetcher.Get(ctx, listing)
	if err != nil {
		return nil, err
	}

	filings, err := parseFilingList(body, form)
	if err != nil {
		return nil, err
	}

	for _, filing := range filings {
		if filing.DocumentsURL != "" {
			filing.DocumentsURL = client.absolute(filing.DocumentsURL)
		}
	}

	log.Debug().Str("CIK", cik).Str("Form", form).Int("NumFilings", len(filings)).Msg("parsed filing list")

	return filings, nil
}

// FilingDate returns the date of the most recent filing of cik with a form
// starting with formPrefix filed before the given date
func (client *Client) FilingDate(ctx context.Context, cik, formPrefix string, before time.Time) (time.Time, error) {
	filings, err := client.Filings(ctx, cik, formPrefix, before)
	if err != nil {
		return time.Time{}, err
	}

	if len(filings) == 0 {
		return time.Time{}, fmt.Errorf("%w: cik %s form %s", ErrNoFilings, cik, formPrefix)
	}

	return filings[0].FilingDate, nil
}

func parseFilingList(body []byte, form string) ([]*Filing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	filings := make([]*Filing, 0, 20)
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 4 {
			return
		}

		docType := strings.TrimSpace(cells.Eq(0).Text())
		if !formMatches(docType, form) {
			return
		}

		dateStr := strings.TrimSpace(cells.Eq(3).Text())
		if len(dateStr) > 10 {
			dateStr = dateStr[:10]
		}

		filingDate, err := time.Parse(filingDateFormat, dateStr)
		if err != nil {
			log.Warn().Err(err).Str("Form", docType).Str("FilingDate", dateStr).Msg("could not parse filing date")
			return
		}

		filing := &Filing{
			Form:       docType,
			FilingDate: filingDate,
		}

		if href, ok := cells.Eq(1).Find("a").First().Attr("href"); ok {
			filing.DocumentsURL = href
		}

		filings = append(filings, filing)
	})

	return filings, nil
}

// formMatches compares exactly unless form is a family prefix such as "10-"
func formMatches(docType, form string) bool {
	if strings.HasSuffix(form, "-") {
		return strings.HasPrefix(docType, form)
	}
	return docType == form
}

// LastEndedQuarter returns the last day of the most recently completed
// calendar quarter relative to now
func LastEndedQuarter(now time.Time) time.Time {
	quarterStartMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
	quarterStart := time.Date(now.Year(), quarterStartMonth, 1, 0, 0, 0, 0, time.UTC)
	return quarterStart.AddDate(0, 0, -1)
}
