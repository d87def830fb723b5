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
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/penny-vault/pvscrape/archive"
	"github.com/penny-vault/pvscrape/data"
	"github.com/rs/zerolog/log"
)

const archiveDateFormat = "2006-01-02"

// runArchive collects the records of a single run so they can be written
// to parquet once the run completes
type runArchive struct {
	earnings        []*data.Earnings
	filings         []*data.Filing
	holdings        []*data.Holding
	recommendations []*data.Recommendation
}

func (ra *runArchive) add(obs *data.Observation) {
	if obs.Earnings != nil {
		obs.Earnings.EventDateStr = obs.Earnings.EventDate.Format(archiveDateFormat)
		ra.earnings = append(ra.earnings, obs.Earnings)
	}

	if obs.Filing != nil {
		obs.Filing.QuarterEndStr = obs.Filing.QuarterEnd.Format(archiveDateFormat)
		if obs.Filing.FilingDate != nil {
			obs.Filing.FilingDateStr = obs.Filing.FilingDate.Format(archiveDateFormat)
		}
		ra.filings = append(ra.filings, obs.Filing)
	}

	if obs.Holding != nil {
		obs.Holding.ReportDateStr = obs.Holding.ReportDate.Format(archiveDateFormat)
		obs.Holding.FilingDateStr = obs.Holding.FilingDate.Format(archiveDateFormat)
		ra.holdings = append(ra.holdings, obs.Holding)
	}

	if obs.Recommendation != nil {
		obs.Recommendation.EventDateStr = obs.Recommendation.EventDate.Format(archiveDateFormat)
		ra.recommendations = append(ra.recommendations, obs.Recommendation)
	}
}

// write saves one parquet file per data type to dir and uploads it to
// backblaze when credentials are configured
func (ra *runArchive) write(dir string, subscription *Subscription) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	now := time.Now()
	var errs []error

	save := func(key string, num int, writeFn func(string) error) {
		if num == 0 {
			return
		}

		fn := filepath.Join(dir, fmt.Sprintf("%s-%s.parquet", subscription.DataTablesMap[key], now.Format("20060102T150405")))
		if err := writeFn(fn); err != nil {
			errs = append(errs, err)
			return
		}

		if archive.UploadEnabled() {
			if err := archive.Upload(fn, fmt.Sprintf("%s/%d", key, now.Year())); err != nil {
				errs = append(errs, err)
			}
		} else {
			log.Debug().Str("FileName", fn).Msg("skipping upload to backblaze because backblaze credentials are missing")
		}
	}

	save(data.EarningsKey, len(ra.earnings), func(fn string) error { return archive.Save(ra.earnings, fn) })
	save(data.FilingsKey, len(ra.filings), func(fn string) error { return archive.Save(ra.filings, fn) })
	save(data.HoldingsKey, len(ra.holdings), func(fn string) error { return archive.Save(ra.holdings, fn) })
	save(data.RecommendationKey, len(ra.recommendations), func(fn string) error { return archive.Save(ra.recommendations, fn) })

	return errors.Join(errs...)
}
