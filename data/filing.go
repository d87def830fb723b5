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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Filing holds the fundamentals a company reported for a fiscal quarter.
// FilingDate is the date the numbers became public, when it is known.
type Filing struct {
	Ticker                     string     `db:"ticker" json:"ticker" validate:"required" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FilingDate                 *time.Time `db:"filing_date" json:"filing_date"`
	FilingDateStr              string     `db:"-" json:"-" parquet:"name=filing_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	QuarterEnd                 time.Time  `db:"quarter_end" json:"quarter_end" validate:"required"`
	QuarterEndStr              string     `db:"-" json:"-" parquet:"name=quarter_end, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Shares                     *int64     `db:"shares" json:"shares" parquet:"name=shares, type=INT64, repetitiontype=OPTIONAL"`
	SharesSplitAdjusted        *int64     `db:"shares_split_adjusted" json:"shares_split_adjusted" parquet:"name=shares_split_adjusted, type=INT64, repetitiontype=OPTIONAL"`
	SplitFactor                *float64   `db:"split_factor" json:"split_factor" parquet:"name=split_factor, type=DOUBLE, repetitiontype=OPTIONAL"`
	Assets                     *float64   `db:"assets" json:"assets" parquet:"name=assets, type=DOUBLE, repetitiontype=OPTIONAL"`
	CurrentAssets              *float64   `db:"current_assets" json:"current_assets" parquet:"name=current_assets, type=DOUBLE, repetitiontype=OPTIONAL"`
	Liabilities                *float64   `db:"liabilities" json:"liabilities" parquet:"name=liabilities, type=DOUBLE, repetitiontype=OPTIONAL"`
	CurrentLiabilities         *float64   `db:"current_liabilities" json:"current_liabilities" parquet:"name=current_liabilities, type=DOUBLE, repetitiontype=OPTIONAL"`
	ShareholdersEquity         *float64   `db:"shareholders_equity" json:"shareholders_equity" parquet:"name=shareholders_equity, type=DOUBLE, repetitiontype=OPTIONAL"`
	NonControllingInterest     *float64   `db:"non_controlling_interest" json:"non_controlling_interest" parquet:"name=non_controlling_interest, type=DOUBLE, repetitiontype=OPTIONAL"`
	PreferredEquity            *float64   `db:"preferred_equity" json:"preferred_equity" parquet:"name=preferred_equity, type=DOUBLE, repetitiontype=OPTIONAL"`
	GoodwillAndIntangibles     *float64   `db:"goodwill_and_intangibles" json:"goodwill_and_intangibles" parquet:"name=goodwill_and_intangibles, type=DOUBLE, repetitiontype=OPTIONAL"`
	LongTermDebt               *float64   `db:"long_term_debt" json:"long_term_debt" parquet:"name=long_term_debt, type=DOUBLE, repetitiontype=OPTIONAL"`
	Revenue                    *float64   `db:"revenue" json:"revenue" parquet:"name=revenue, type=DOUBLE, repetitiontype=OPTIONAL"`
	Earnings                   *float64   `db:"earnings" json:"earnings" parquet:"name=earnings, type=DOUBLE, repetitiontype=OPTIONAL"`
	EarningsAvailableForCommon *float64   `db:"earnings_available_for_common" json:"earnings_available_for_common" parquet:"name=earnings_available_for_common, type=DOUBLE, repetitiontype=OPTIONAL"`
	EPSBasic                   *float64   `db:"eps_basic" json:"eps_basic" parquet:"name=eps_basic, type=DOUBLE, repetitiontype=OPTIONAL"`
	EPSDiluted                 *float64   `db:"eps_diluted" json:"eps_diluted" parquet:"name=eps_diluted, type=DOUBLE, repetitiontype=OPTIONAL"`
	DividendPerShare           *float64   `db:"dividend_per_share" json:"dividend_per_share" parquet:"name=dividend_per_share, type=DOUBLE, repetitiontype=OPTIONAL"`
	OperatingCash              *float64   `db:"operating_cash" json:"operating_cash" parquet:"name=operating_cash, type=DOUBLE, repetitiontype=OPTIONAL"`
	InvestingCash              *float64   `db:"investing_cash" json:"investing_cash" parquet:"name=investing_cash, type=DOUBLE, repetitiontype=OPTIONAL"`
	FinancingCash              *float64   `db:"financing_cash" json:"financing_cash" parquet:"name=financing_cash, type=DOUBLE, repetitiontype=OPTIONAL"`
	CashChange                 *float64   `db:"cash_change" json:"cash_change" parquet:"name=cash_change, type=DOUBLE, repetitiontype=OPTIONAL"`
	CashAtEnd                  *float64   `db:"cash_at_end" json:"cash_at_end" parquet:"name=cash_at_end, type=DOUBLE, repetitiontype=OPTIONAL"`
	Capex                      *float64   `db:"capex" json:"capex" parquet:"name=capex, type=DOUBLE, repetitiontype=OPTIONAL"`
	ROE                        *float64   `db:"roe" json:"roe" parquet:"name=roe, type=DOUBLE, repetitiontype=OPTIONAL"`
	ROA                        *float64   `db:"roa" json:"roa" parquet:"name=roa, type=DOUBLE, repetitiontype=OPTIONAL"`
	BookValuePerShare          *float64   `db:"book_value_per_share" json:"book_value_per_share" parquet:"name=book_value_per_share, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceToBook                *float64   `db:"price_to_book" json:"price_to_book" parquet:"name=price_to_book, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceToEarnings            *float64   `db:"price_to_earnings" json:"price_to_earnings" parquet:"name=price_to_earnings, type=DOUBLE, repetitiontype=OPTIONAL"`
	CumDividendsPerShare       *float64   `db:"cum_dividends_per_share" json:"cum_dividends_per_share" parquet:"name=cum_dividends_per_share, type=DOUBLE, repetitiontype=OPTIONAL"`
	DividendPayoutRatio        *float64   `db:"dividend_payout_ratio" json:"dividend_payout_ratio" parquet:"name=dividend_payout_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	LongTermDebtToEquity       *float64   `db:"long_term_debt_to_equity" json:"long_term_debt_to_equity" parquet:"name=long_term_debt_to_equity, type=DOUBLE, repetitiontype=OPTIONAL"`
	EquityToAssets             *float64   `db:"equity_to_assets" json:"equity_to_assets" parquet:"name=equity_to_assets, type=DOUBLE, repetitiontype=OPTIONAL"`
	NetMargin                  *float64   `db:"net_margin" json:"net_margin" parquet:"name=net_margin, type=DOUBLE, repetitiontype=OPTIONAL"`
	AssetTurnover              *float64   `db:"asset_turnover" json:"asset_turnover" parquet:"name=asset_turnover, type=DOUBLE, repetitiontype=OPTIONAL"`
	FreeCashFlowPerShare       *float64   `db:"free_cash_flow_per_share" json:"free_cash_flow_per_share" parquet:"name=free_cash_flow_per_share, type=DOUBLE, repetitiontype=OPTIONAL"`
	CurrentRatio               *float64   `db:"current_ratio" json:"current_ratio" parquet:"name=current_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
}

var filingColumns = []string{
	"ticker",
	"filing_date",
	"quarter_end",
	"shares",
	"shares_split_adjusted",
	"split_factor",
	"assets",
	"current_assets",
	"liabilities",
	"current_liabilities",
	"shareholders_equity",
	"non_controlling_interest",
	"preferred_equity",
	"goodwill_and_intangibles",
	"long_term_debt",
	"revenue",
	"earnings",
	"earnings_available_for_common",
	"eps_basic",
	"eps_diluted",
	"dividend_per_share",
	"operating_cash",
	"investing_cash",
	"financing_cash",
	"cash_change",
	"cash_at_end",
	"capex",
	"roe",
	"roa",
	"book_value_per_share",
	"price_to_book",
	"price_to_earnings",
	"cum_dividends_per_share",
	"dividend_payout_ratio",
	"long_term_debt_to_equity",
	"equity_to_assets",
	"net_margin",
	"asset_turnover",
	"free_cash_flow_per_share",
	"current_ratio",
}

func (filing *Filing) values() []any {
	return []any{
		filing.Ticker,
		filing.FilingDate,
		filing.QuarterEnd,
		filing.Shares,
		filing.SharesSplitAdjusted,
		filing.SplitFactor,
		filing.Assets,
		filing.CurrentAssets,
		filing.Liabilities,
		filing.CurrentLiabilities,
		filing.ShareholdersEquity,
		filing.NonControllingInterest,
		filing.PreferredEquity,
		filing.GoodwillAndIntangibles,
		filing.LongTermDebt,
		filing.Revenue,
		filing.Earnings,
		filing.EarningsAvailableForCommon,
		filing.EPSBasic,
		filing.EPSDiluted,
		filing.DividendPerShare,
		filing.OperatingCash,
		filing.InvestingCash,
		filing.FinancingCash,
		filing.CashChange,
		filing.CashAtEnd,
		filing.Capex,
		filing.ROE,
		filing.ROA,
		filing.BookValuePerShare,
		filing.PriceToBook,
		filing.PriceToEarnings,
		filing.CumDividendsPerShare,
		filing.DividendPayoutRatio,
		filing.LongTermDebtToEquity,
		filing.EquityToAssets,
		filing.NetMargin,
		filing.AssetTurnover,
		filing.FreeCashFlowPerShare,
		filing.CurrentRatio,
	}
}

func (filing *Filing) SaveDB(ctx context.Context, tbl string, dbConn *pgxpool.Conn) error {
	tx, err := dbConn.Begin(ctx)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(filingColumns))
	updates := make([]string, 0, len(filingColumns)-2)
	for idx, col := range filingColumns {
		placeholders[idx] = fmt.Sprintf("$%d", idx+1)
		if col != "ticker" && col != "quarter_end" {
			updates = append(updates, fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", col))
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s) VALUES (%[3]s)
	ON CONFLICT ON CONSTRAINT %[1]s_pkey DO UPDATE SET %[4]s`, tbl,
		strings.Join(filingColumns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	if _, err := tx.Exec(ctx, sql, filing.values()...); err != nil {
		log.Error().Err(err).Str("Ticker", filing.Ticker).Time("QuarterEnd", filing.QuarterEnd).Msg("save filing to DB failed")
		if err2 := tx.Rollback(ctx); err2 != nil {
			log.Error().Err(err2).Msg("error rollingback tx")
		}
		return err
	}

	return tx.Commit(ctx)
}

// LastQuarterEnd returns the latest quarter end stored for ticker or the
// zero time if nothing has been stored yet.
func LastQuarterEnd(ctx context.Context, tbl string, dbConn *pgxpool.Conn, ticker string) (time.Time, error) {
	var last *time.Time
	if err := dbConn.QueryRow(ctx, fmt.Sprintf("SELECT max(quarter_end) FROM %s WHERE ticker=$1", tbl), ticker).Scan(&last); err != nil {
		return time.Time{}, err
	}

	if last == nil {
		return time.Time{}, nil
	}

	return *last, nil
}

func FilingsByTicker(ctx context.Context, db pgxscan.Querier, tbl, ticker string) ([]*Filing, error) {
	var filings []*Filing
	err := pgxscan.Select(ctx, db, &filings, fmt.Sprintf("SELECT %s FROM %s WHERE ticker=$1 ORDER BY quarter_end",
		strings.Join(filingColumns, ", "), tbl), ticker)
	return filings, err
}
