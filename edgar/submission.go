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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/penny-vault/pvscrape/data"
	"github.com/rs/zerolog/log"
)

// 13F values were reported in thousands of dollars until this date
var dollarValueCutover = time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)

const (
	periodOfReport = "PERIOD OF REPORT:"
	oldFormatWidth = 6
)

// Holdings downloads the full submission text of a 13F filing and parses
// its information table
func (client *Client) Holdings(ctx context.Context, filing *Filing) ([]*data.Holding, error) {
	body, err := client.fetcher.Get(ctx, filing.DocumentsURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var submission string
	doc.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if ok && strings.HasSuffix(href, ".txt") {
			submission = href
			return false
		}
		return true
	})

	if submission == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSubmission, filing.DocumentsURL)
	}

	content, err := client.fetcher.Get(ctx, client.absolute(submission))
	if err != nil {
		return nil, err
	}

	return ParseSubmission(content, filing.FilingDate)
}

// ParseSubmission extracts the holdings from the full text of a 13F
// submission. Both the XML information table and the older tab separated
// text table are understood. Values are returned in dollars.
func ParseSubmission(content []byte, filingDate time.Time) ([]*data.Holding, error) {
	text := string(content)

	reportDate, err := reportPeriod(text)
	if err != nil {
		return nil, err
	}

	holdings := parseInfoTable(text)
	if len(holdings) == 0 {
		log.Debug().Time("ReportDate", reportDate).Msg("no XML information table, parsing text table")
		holdings = parseTextTable(text)
	}

	multiplier := int64(1)
	if filingDate.Before(dollarValueCutover) {
		multiplier = 1000
	}

	for idx, holding := range holdings {
		holding.Line = int32(idx + 1)
		holding.ReportDate = reportDate
		holding.FilingDate = filingDate
		holding.Value *= multiplier
	}

	return holdings, nil
}

func reportPeriod(text string) (time.Time, error) {
	_, after, found := strings.Cut(text, periodOfReport)
	if !found {
		return time.Time{}, ErrNoReportPeriod
	}

	line, _, _ := strings.Cut(after, "\n")
	return time.Parse(beforeDateFormat, strings.TrimSpace(line))
}

func xmlSections(text string) []string {
	sections := make([]string, 0, 2)
	for {
		_, rest, found := strings.Cut(text, "<XML>")
		if !found {
			return sections
		}

		section, remaining, found := strings.Cut(rest, "</XML>")
		sections = append(sections, strings.TrimSpace(section))
		if !found {
			return sections
		}
		text = remaining
	}
}

func childText(node *xmlquery.Node, name string) string {
	child := xmlquery.FindOne(node, fmt.Sprintf(".//*[local-name()='%s']", name))
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}

func parseNumber(value string) (int64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseInfoTable(text string) []*data.Holding {
	holdings := make([]*data.Holding, 0, 50)

	for _, section := range xmlSections(text) {
		doc, err := xmlquery.Parse(strings.NewReader(section))
		if err != nil {
			log.Warn().Err(err).Msg("could not parse XML section of submission")
			continue
		}

		for _, node := range xmlquery.Find(doc, "//*[local-name()='infoTable']") {
			holding := &data.Holding{
				Security:     childText(node, "nameOfIssuer"),
				Title:        childText(node, "titleOfClass"),
				Cusip:        childText(node, "cusip"),
				SecurityType: childText(node, "sshPrnamtType"),
				OptionType:   data.OptionNone,
			}

			var err error
			if holding.Value, err = parseNumber(childText(node, "value")); err != nil {
				log.Warn().Err(err).Str("Cusip", holding.Cusip).Msg("invalid value in information table")
				continue
			}

			if holding.Quantity, err = parseNumber(childText(node, "sshPrnamt")); err != nil {
				log.Warn().Err(err).Str("Cusip", holding.Cusip).Msg("invalid quantity in information table")
				continue
			}

			if putCall := childText(node, "putCall"); putCall != "" {
				holding.Security += " " + putCall
				holding.OptionType = putCall
			}

			if voting := xmlquery.FindOne(node, "./*[local-name()='votingAuthority']"); voting != nil {
				holding.VotingAuthority = fmt.Sprintf("%s/%s/%s", childText(voting, "Sole"),
					childText(voting, "Shared"), childText(voting, "None"))
			}

			holdings = append(holdings, holding)
		}
	}

	return holdings
}

// textTableTokens flattens every tab separated cell below the dashed ruler
// of each <TABLE> block
func textTableTokens(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "&amp;", "&"), "\n")
	tokens := make([]string, 0, 120)

	for idx := 0; idx < len(lines); idx++ {
		if !strings.Contains(lines[idx], "<TABLE>") {
			continue
		}

		for idx < len(lines) && !strings.Contains(lines[idx], "-----") {
			idx++
		}

		for idx++; idx < len(lines) && !strings.Contains(lines[idx], "</TABLE>"); idx++ {
			for _, cell := range strings.Split(lines[idx], "\t") {
				cell = strings.TrimSpace(cell)
				if cell == "" || cell == "x" || strings.Contains(cell, "---") {
					continue
				}
				tokens = append(tokens, cell)
			}
		}
	}

	return tokens
}

func parseTextTable(text string) []*data.Holding {
	tokens := textTableTokens(text)
	holdings := make([]*data.Holding, 0, len(tokens)/oldFormatWidth)

	for start := 0; start+oldFormatWidth <= len(tokens); start += oldFormatWidth {
		row := tokens[start : start+oldFormatWidth]

		value, err := parseNumber(row[3])
		if err != nil {
			log.Warn().Err(err).Strs("Row", row).Msg("invalid value in text table")
			continue
		}

		quantity, err := parseNumber(row[4])
		if err != nil {
			log.Warn().Err(err).Strs("Row", row).Msg("invalid quantity in text table")
			continue
		}

		holdings = append(holdings, &data.Holding{
			Security:        row[0],
			SecurityType:    row[1],
			Cusip:           row[2],
			Value:           value,
			Quantity:        quantity,
			VotingAuthority: row[5],
			OptionType:      data.OptionNone,
		})
	}

	return holdings
}
