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
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Recommendation is a daily snapshot of the analyst consensus for a ticker.
// Details keeps every label and value pair that was shown on the page.
type Recommendation struct {
	Ticker             string            `db:"ticker" json:"ticker" validate:"required" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	EventDate          time.Time         `db:"event_date" json:"event_date" validate:"required"`
	EventDateStr       string            `db:"-" json:"-" parquet:"name=event_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ABR                *float64          `db:"abr" json:"abr" validate:"omitnil,gte=1,lte=5" parquet:"name=abr, type=DOUBLE, repetitiontype=OPTIONAL"`
	NumRecommendations *int32            `db:"num_recommendations" json:"num_recommendations" parquet:"name=num_recommendations, type=INT32, repetitiontype=OPTIONAL"`
	AverageTargetPrice *float64          `db:"average_target_price" json:"average_target_price" parquet:"name=average_target_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	Industry           *string           `db:"industry" json:"industry" parquet:"name=industry, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	IndustryRank       *string           `db:"industry_rank" json:"industry_rank" parquet:"name=industry_rank, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Details            map[string]string `db:"details" json:"details"`
}

func (rec *Recommendation) SaveDB(ctx context.Context, tbl string, dbConn *pgxpool.Conn) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}

	tx, err := dbConn.Begin(ctx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`INSERT INTO %[1]s (
		"ticker",
		"event_date",
		"abr",
		"num_recommendations",
		"average_target_price",
		"industry",
		"industry_rank",
		"details"
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	) ON CONFLICT ON CONSTRAINT %[1]s_pkey DO UPDATE SET
		abr = EXCLUDED.abr,
		num_recommendations = EXCLUDED.num_recommendations,
		average_target_price = EXCLUDED.average_target_price,
		industry = EXCLUDED.industry,
		industry_rank = EXCLUDED.industry_rank,
		details = EXCLUDED.details`, tbl)

	_, err = tx.Exec(ctx, sql, rec.Ticker, rec.EventDate, rec.ABR, rec.NumRecommendations,
		rec.AverageTargetPrice, rec.Industry, rec.IndustryRank, details)
	if err != nil {
		log.Error().Err(err).Str("SQL", sql).Str("Ticker", rec.Ticker).Msg("save recommendation to DB failed")
		if err2 := tx.Rollback(ctx); err2 != nil {
			log.Error().Err(err2).Msg("error rollingback tx")
		}
		return err
	}

	return tx.Commit(ctx)
}

func RecommendationsByTicker(ctx context.Context, db pgxscan.Querier, tbl, ticker string) ([]*Recommendation, error) {
	var recs []*Recommendation
	err := pgxscan.Select(ctx, db, &recs, fmt.Sprintf(`SELECT ticker, event_date, abr, num_recommendations,
average_target_price, industry, industry_rank, details FROM %s WHERE ticker=$1 ORDER BY event_date`, tbl), ticker)
	return recs, err
}
