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

// Earnings is a single row of an earnings calendar. Forecast, Actual and
// Surprise are nil when the calendar did not publish a number.
type Earnings struct {
	EventDate    time.Time `db:"event_date" json:"event_date" validate:"required"`
	EventDateStr string    `db:"-" json:"-" parquet:"name=event_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Ticker       string    `db:"ticker" json:"ticker" validate:"required" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Quarter      string    `db:"quarter" json:"quarter" parquet:"name=quarter, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Forecast     *float64  `db:"forecast" json:"forecast" parquet:"name=forecast, type=DOUBLE, repetitiontype=OPTIONAL"`
	Estimates    int32     `db:"estimates" json:"estimates" validate:"gte=0" parquet:"name=estimates, type=INT32"`
	Actual       *float64  `db:"actual" json:"actual" parquet:"name=actual, type=DOUBLE, repetitiontype=OPTIONAL"`
	Surprise     *float64  `db:"surprise" json:"surprise" parquet:"name=surprise, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func (earnings *Earnings) MarshalZerologObject(e *zerolog.Event) {
	e.Time("EventDate", earnings.EventDate)
	e.Str("Ticker", earnings.Ticker)
	e.Str("Quarter", earnings.Quarter)
	e.Int32("Estimates", earnings.Estimates)
	if earnings.Forecast != nil {
		e.Float64("Forecast", *earnings.Forecast)
	}
	if earnings.Actual != nil {
		e.Float64("Actual", *earnings.Actual)
	}
	if earnings.Surprise != nil {
		e.Float64("Surprise", *earnings.Surprise)
	}
}

func (earnings *Earnings) SaveDB(ctx context.Context, tbl string, dbConn *pgxpool.Conn) error {
	tx, err := dbConn.Begin(ctx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`INSERT INTO %[1]s (
		"event_date",
		"ticker",
		"quarter",
		"forecast",
		"estimates",
		"actual",
		"surprise"
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	) ON CONFLICT ON CONSTRAINT %[1]s_pkey DO UPDATE SET
		quarter = EXCLUDED.quarter,
		forecast = EXCLUDED.forecast,
		estimates = EXCLUDED.estimates,
		actual = EXCLUDED.actual,
		surprise = EXCLUDED.surprise`, tbl)

	if _, err := tx.Exec(ctx, sql, earnings.EventDate, earnings.Ticker, earnings.Quarter,
		earnings.Forecast, earnings.Estimates, earnings.Actual, earnings.Surprise); err != nil {
		log.Error().Err(err).Str("SQL", sql).Object("Earnings", earnings).Msg("save earnings to DB failed")
		if err2 := tx.Rollback(ctx); err2 != nil {
			log.Error().Err(err2).Msg("error rollingback tx")
		}
		return err
	}

	return tx.Commit(ctx)
}

// LastEarningsDate returns the most recent event date stored in tbl. The
// zero time is returned when the table is empty.
func LastEarningsDate(ctx context.Context, tbl string, dbConn *pgxpool.Conn) (time.Time, error) {
	var last *time.Time
	if err := dbConn.QueryRow(ctx, fmt.Sprintf("SELECT max(event_date) FROM %s", tbl)).Scan(&last); err != nil {
		return time.Time{}, err
	}

	if last == nil {
		return time.Time{}, nil
	}

	return *last, nil
}

// EarningsByTicker returns every stored earnings row for ticker ordered by date
func EarningsByTicker(ctx context.Context, db pgxscan.Querier, tbl, ticker string) ([]*Earnings, error) {
	var earnings []*Earnings
	err := pgxscan.Select(ctx, db, &earnings, fmt.Sprintf(`SELECT event_date, ticker, quarter,
forecast, estimates, actual, surprise FROM %s WHERE ticker=$1 ORDER BY event_date`, tbl), ticker)
	return earnings, err
}
