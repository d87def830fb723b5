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
package figi

import (
	"context"
	"fmt"

	"github.com/alphadose/haxmap"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/penny-vault/pvscrape/data"
	"github.com/rs/zerolog/log"
)

// Security is the listing a CUSIP resolves to
type Security struct {
	Cusip         string `db:"cusip"`
	Ticker        string `db:"ticker"`
	CompositeFigi string `db:"composite_figi"`
}

var (
	cusipMap *haxmap.Map[string, *Security]
)

func init() {
	cusipMap = haxmap.New[string, *Security]()
}

func MapInstance() *haxmap.Map[string, *Security] {
	return cusipMap
}

// LoadCacheFromDB warms the CUSIP cache with the mappings already stored in
// a holdings table
func LoadCacheFromDB(ctx context.Context, db pgxscan.Querier, holdingsTable string) {
	sql := fmt.Sprintf(`SELECT DISTINCT ON (cusip) cusip, ticker, composite_figi FROM %s
WHERE ticker IS NOT NULL AND composite_figi IS NOT NULL ORDER BY cusip, report_date DESC`, holdingsTable)

	var securities []*Security
	if err := pgxscan.Select(ctx, db, &securities, sql); err != nil {
		log.Error().Err(err).Str("SQL", sql).Msg("could not load cusip mappings")
		return
	}

	for _, security := range securities {
		cusipMap.Set(security.Cusip, security)
	}

	log.Debug().Int("NumSecurities", len(securities)).Msg("loaded cusip cache")
}

// Enrich fills in the ticker and composite FIGI of each holding. Cached
// mappings are used first and the rest are looked up on OpenFIGI.
func Enrich(ctx context.Context, holdings ...*data.Holding) {
	missing := make([]string, 0, len(holdings))
	requested := make(map[string]bool)
	for _, holding := range holdings {
		if _, ok := cusipMap.Get(holding.Cusip); ok {
			continue
		}
		if !requested[holding.Cusip] {
			requested[holding.Cusip] = true
			missing = append(missing, holding.Cusip)
		}
	}

	if len(missing) > 0 {
		found, err := LookupCusips(ctx, missing)
		if err != nil {
			log.Error().Err(err).Int("NumCusips", len(missing)).Msg("openfigi lookup failed")
		}

		for cusip, asset := range found {
			cusipMap.Set(cusip, &Security{
				Cusip:         cusip,
				Ticker:        asset.Ticker,
				CompositeFigi: asset.CompositeFIGI,
			})
		}
	}

	for _, holding := range holdings {
		security, ok := cusipMap.Get(holding.Cusip)
		if !ok {
			continue
		}

		if security.Ticker != "" {
			ticker := security.Ticker
			holding.Ticker = &ticker
		}
		if security.CompositeFigi != "" {
			compositeFigi := security.CompositeFigi
			holding.CompositeFigi = &compositeFigi
		}
	}
}
