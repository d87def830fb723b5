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
package data

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type RunStatus int

const (
	RunSuccess RunStatus = iota
	RunFailed
)

func (status RunStatus) String() string {
	switch status {
	case RunSuccess:
		return "success"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type RunSummary struct {
	StartTime        time.Time
	EndTime          time.Time
	NumObservations  int
	NumSecurities    int
	FirstObsDate     time.Time
	LastObsDate      time.Time
	Status           RunStatus
	SubscriptionID   uuid.UUID
	SubscriptionName string
}

// Track widens the observed date range of the run to include date
func (summary *RunSummary) Track(date time.Time) {
	summary.NumObservations++
	if summary.FirstObsDate.IsZero() || date.Before(summary.FirstObsDate) {
		summary.FirstObsDate = date
	}
	if date.After(summary.LastObsDate) {
		summary.LastObsDate = date
	}
}

type Observation struct {
	Earnings       *Earnings
	Filing         *Filing
	Holding        *Holding
	Recommendation *Recommendation

	ObservationDate  time.Time
	SubscriptionID   uuid.UUID
	SubscriptionName string
}

type DataType struct {
	Name    string
	Schema  string
	Version int
}

const (
	EarningsKey       = "earnings"
	FilingsKey        = "filings"
	HoldingsKey       = "holdings"
	RecommendationKey = "recommendations"
)

var DataTypes = map[string]*DataType{
	EarningsKey: {
		Name: EarningsKey,
		Schema: `CREATE TABLE %[1]s (
event_date DATE    NOT NULL,
ticker     TEXT    NOT NULL,
quarter    TEXT,
forecast   REAL,
estimates  INTEGER NOT NULL DEFAULT 0,
actual     REAL,
surprise   REAL,
PRIMARY KEY (ticker, event_date)
);

CREATE INDEX %[1]s_event_date_idx ON %[1]s(event_date);`,
		Version: 1,
	},
	FilingsKey: {
		Name: FilingsKey,
		Schema: `CREATE TABLE %[1]s (
ticker                           TEXT NOT NULL,
filing_date                      DATE,
quarter_end                      DATE NOT NULL,
shares                           BIGINT,
shares_split_adjusted            BIGINT,
split_factor                     REAL,
assets                           REAL,
current_assets                   REAL,
liabilities                      REAL,
current_liabilities              REAL,
shareholders_equity              REAL,
non_controlling_interest         REAL,
preferred_equity                 REAL,
goodwill_and_intangibles         REAL,
long_term_debt                   REAL,
revenue                          REAL,
earnings                         REAL,
earnings_available_for_common    REAL,
eps_basic                        REAL,
eps_diluted                      REAL,
dividend_per_share               REAL,
operating_cash                   REAL,
investing_cash                   REAL,
financing_cash                   REAL,
cash_change                      REAL,
cash_at_end                      REAL,
capex                            REAL,
roe                              REAL,
roa                              REAL,
book_value_per_share             REAL,
price_to_book                    REAL,
price_to_earnings                REAL,
cum_dividends_per_share          REAL,
dividend_payout_ratio            REAL,
long_term_debt_to_equity         REAL,
equity_to_assets                 REAL,
net_margin                       REAL,
asset_turnover                   REAL,
free_cash_flow_per_share         REAL,
current_ratio                    REAL,
PRIMARY KEY (ticker, quarter_end)
);

CREATE INDEX %[1]s_filing_date_idx ON %[1]s(filing_date);`,
		Version: 1,
	},
	HoldingsKey: {
		Name: HoldingsKey,
		Schema: `CREATE TABLE %[1]s (
filer_cik        TEXT    NOT NULL,
filer_name       TEXT    NOT NULL,
report_date      DATE    NOT NULL,
filing_date      DATE    NOT NULL,
line             INTEGER NOT NULL,
security         TEXT    NOT NULL,
cusip            CHARACTER VARYING(9) NOT NULL,
title            TEXT,
quantity         BIGINT  NOT NULL DEFAULT 0,
value            BIGINT  NOT NULL DEFAULT 0,
option_type      TEXT    NOT NULL DEFAULT 'na',
security_type    TEXT,
voting_authority TEXT,
ticker           TEXT,
composite_figi   TEXT,
PRIMARY KEY (filer_cik, report_date, line)
);

CREATE INDEX %[1]s_cusip_idx ON %[1]s(cusip);
CREATE INDEX %[1]s_ticker_idx ON %[1]s(ticker);`,
		Version: 1,
	},
	RecommendationKey: {
		Name: RecommendationKey,
		Schema: `CREATE TABLE %[1]s (
ticker               TEXT NOT NULL,
event_date           DATE NOT NULL,
abr                  REAL,
num_recommendations  INTEGER,
average_target_price REAL,
industry             TEXT,
industry_rank        TEXT,
details              JSONB,
PRIMARY KEY (ticker, event_date)
);`,
		Version: 1,
	},
}

// ExpandedSchema returns the schema of the data type with the table name filled in
func (dt *DataType) ExpandedSchema(tableName string) string {
	return fmt.Sprintf(dt.Schema, tableName)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of a record before it is published
func Validate(record interface{}) error {
	return validate.Struct(record)
}
