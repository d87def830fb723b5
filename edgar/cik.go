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
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// CIK resolves a ticker to its zero padded central index key. When the
// ticker is unknown to EDGAR the ticker itself is returned since the browse
// interface also accepts tickers.
func (client *Client) CIK(ctx context.Context, ticker string) string {
	ticker = strings.ToUpper(ticker)

	client.mu.Lock()
	defer client.mu.Unlock()

	if client.ciks == nil {
		ciks, err := client.loadCIKs(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not load company tickers from EDGAR")
			return ticker
		}
		client.ciks = ciks
	}

	if cik, ok := client.ciks[ticker]; ok {
		return cik
	}

	return ticker
}

func (client *Client) loadCIKs(ctx context.Context) (map[string]string, error) {
	body, err := client.fetcher.Get(ctx, client.BaseURL+"/files/company_tickers.json")
	if err != nil {
		return nil, err
	}

	ciks := make(map[string]string)
	gjson.ParseBytes(body).ForEach(func(_, company gjson.Result) bool {
		ticker := strings.ToUpper(company.Get("ticker").String())
		if ticker != "" {
			ciks[ticker] = fmt.Sprintf("%010d", company.Get("cik_str").Int())
		}
		return true
	})

	log.Debug().Int("NumCompanies", len(ciks)).Msg("loaded company tickers")

	return ciks, nil
}
