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
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	OptionNone = "na"
	OptionPut  = "Put"
	OptionCall = "Call"
)

// Holding is one line of an institutional manager's 13F information table.
// Value is always expressed in dollars.
type Holding struct {
	FilerCIK        string    `db:"filer_cik" json:"filer_cik" validate:"required" parquet:"name=filer_cik, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FilerName       string    `db:"filer_name" json:"filer_name" parquet:"name=filer_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ReportDate      time.Time `db:"report_date" json:"report_date" validate:"required"`
	ReportDateStr   string    `db:"-" json:"-" parquet:"name=report_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FilingDate      time.Time `db:"filing_date" json:"filing_date" validate:"required"`
	FilingDateStr   string    `db:"-" json:"-" parquet:"name=filing_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Line            int32     `db:"line" json:"line" validate:"gte=0" parquet:"name=line, type=INT32"`
	Security        string    `db:"security" json:"security" validate:"required" parquet:"name=security, type=BYTE_ARRAY, convertedtype=UTF8"`
	Cusip           string    `db:"cusip" json:"cusip" validate:"required,max=9" parquet:"name=cusip, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title           string    `db:"title" json:"title" parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Quantity        int64     `db:"quantity" json:"quantity" validate:"gte=0" parquet:"name=quantity, type=INT64"`
	Value           int64     `db:"value" json:"value" validate:"gte=0" parquet:"name=value, type=INT64"`
	OptionType      string    `db:"option_type" json:"option_type" validate:"oneof=na Put Call" parquet:"name=option_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SecurityType    string    `db:"security_type" json:"security_type" parquet:"name=security_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	VotingAuthority string    `db:"voting_authority" json:"voting_authority" parquet:"name=voting_authority, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Ticker          *string   `db:"ticker" json:"ticker" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	CompositeFigi   *string   `db:"composite_figi" json:"composite_figi" parquet:"name=composite_figi, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func (holding *Holding) MarshalZerologObject(e *zerolog.Event) {
	e.Str("FilerCIK", holding.FilerCIK)
	e.Time("ReportDate", holding.ReportDate)
	e.Int32("Line", holding.Line)
	e.Str("Security", holding.Security)
	e.Str("Cusip", holding.Cusip)
	e.Int64("Value", holding.Value)
	e.Int64("Quantity", holding.Quantity)
	e.Str("OptionType", holding.OptionType)
}

func (holding *Holding) SaveDB(ctx context.Context, tbl string, dbConn *pgxpool.Conn) error {
	tx, err := dbConn.Begin(ctx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`INSERT INTO %[1]s (
		"filer_cik",
		"filer_name",
		"report_date",
		"filing_date",
		"line",
		"security",
		"cusip",
		"title",
		"quantity",
		"value",
		"option_type",
		"security_type",
		"voting_authority",
		"ticker",
		"composite_figi"
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
	) ON CONFLICT ON CONSTRAINT %[1]s_pkey DO UPDATE SET
		filer_name = EXCLUDED.filer_name,
		filing_date = EXCLUDED.filing_date,
		security = EXCLUDED.security,
		cusip = EXCLUDED.cusip,
		title = EXCLUDED.title,
		quantity = EXCLUDED.quantity,
		value = EXCLUDED.value,
		option_type = EXCLUDED.option_type,
		security_type = EXCLUDED.security_type,
		voting_authority = EXCLUDED.voting_authority,
		ticker = EXCLUDED.ticker,
		composite_figi = EXCLUDED.composite_figi`, tbl)

	_, err = tx.Exec(ctx, sql, holding.FilerCIK, holding.FilerName, holding.ReportDate, holding.FilingDate,
		holding.Line, holding.Security, holding.Cusip, holding.Title, holding.Quantity, holding.Value,
		holding.OptionType, holding.SecurityType, holding.VotingAuthority, holding.Ticker, holding.CompositeFigi)
	if err != nil {
		log.Error().Err(err).Str("SQL", sql).Object("Holding", holding).Msg("save holding to DB failed")
		if err2 := tx.Rollback(ctx); err2 != nil {
			log.Error().Err(err2).Msg("error rollingback tx")
		}
		return err
	}

	return tx.Commit(ctx)
}

// StoredReportLines counts the lines saved for each report of a filer,
// keyed by the report date formatted as 2006-01-02
func StoredReportLines(ctx context.Context, tbl string, dbConn *pgxpool.Conn, cik string) (map[string]int, error) {
	type reportCount struct {
		ReportDate time.Time `db:"report_date"`
		NumLines   int       `db:"num_lines"`
	}

	var counts []*reportCount
	err := pgxscan.Select(ctx, dbConn, &counts, fmt.Sprintf("SELECT report_date, count(*) AS num_lines FROM %s WHERE filer_cik=$1 GROUP BY report_date", tbl), cik)
	if err != nil {
		return nil, err
	}

	lines := make(map[string]int, len(counts))
	for _, count := range counts {
		lines[count.ReportDate.Format(time.DateOnly)] = count.NumLines
	}
	return lines, nil
}

// LatestHoldings returns the holdings of the most recent report stored for cik
func LatestHoldings(ctx context.Context, db pgxscan.Querier, tbl, cik string) ([]*Holding, error) {
	var holdings []*Holding
	sql := fmt.Sprintf(`SELECT filer_cik, filer_name, report_date, filing_date, line, security, cusip, title,
quantity, value, option_type, security_type, voting_authority, ticker, composite_figi
FROM %[1]s WHERE filer_cik=$1 AND report_date=(SELECT max(report_date) FROM %[1]s WHERE filer_cik=$1)
ORDER BY line`, tbl)
	err := pgxscan.Select(ctx, db, &holdings, sql, cik)
	return holdings, err
}
