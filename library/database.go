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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penny-vault/pvscrape/data"
	"github.com/rs/zerolog/log"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// SaveStats describes what SaveObservations stored during a run
type SaveStats struct {
	Saved     int
	Discarded int

	// Err is the first failed save. Later observations are discarded.
	Err error
}

type Library struct {
	DBUrl string
	Name  string
	Owner string

	// ArchiveDir enables a parquet copy of every run when set
	ArchiveDir string

	Pool *pgxpool.Pool
}

// Connect to the database configured for the library
func (myLibrary *Library) Connect(ctx context.Context) error {
	if myLibrary.Pool != nil {
		return nil
	}

	pool, err := pgxpool.New(context.Background(), myLibrary.DBUrl)
	if err != nil {
		return err
	}
	myLibrary.Pool = pool

	return nil
}

// Close the database pool
func (myLibrary *Library) Close() {
	myLibrary.Pool.Close()
}

// NewFromDB creates a new library object with values from the database
func NewFromDB(ctx context.Context, dbURL string) (*Library, error) {
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	myLibrary := Library{
		DBUrl: dbURL,
		Pool:  pool,
	}

	if err := conn.QueryRow(ctx, "SELECT name, owner FROM library").Scan(&myLibrary.Name, &myLibrary.Owner); err != nil {
		return nil, err
	}

	return &myLibrary, nil
}

// SaveDB creates a new record in the library table for this library
func (myLibrary *Library) SaveDB(ctx context.Context) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO library ("name", "owner") VALUES ($1, $2)`, myLibrary.Name, myLibrary.Owner)
	return err
}

// SaveObservations continuously reads from the input queue and stores each
// observation in the tables of the subscription that produced it. Saving
// stops at the first failure so the stored checkpoints never move past an
// unsaved record; the queue is still drained. The outcome is written to
// stats before wg is released.
func (myLibrary *Library) SaveObservations(queue <-chan *data.Observation, wg *sync.WaitGroup, stats *SaveStats) {
	ctx := context.Background()
	defer wg.Done()

	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot acquire database connection")
		*stats = consume(queue, func(*data.Observation) error { return err })
		return
	}
	defer conn.Release()

	subscriptionList, err := myLibrary.Subscriptions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not get list of subscriptions")
	}

	subscriptions := make(map[uuid.UUID]*Subscription, len(subscriptionList))
	for _, sub := range subscriptionList {
		subscriptions[sub.ID] = sub
	}

	archives := make(map[uuid.UUID]*runArchive)

	*stats = consume(queue, func(elem *data.Observation) error {
		subscription, ok := subscriptions[elem.SubscriptionID]
		if !ok {
			return fmt.Errorf("%w: %s (%s)", ErrSubscriptionNotFound, elem.SubscriptionID, elem.SubscriptionName)
		}

		if err := saveObservation(ctx, conn, subscription, elem); err != nil {
			return err
		}

		if myLibrary.ArchiveDir != "" {
			ra, ok := archives[subscription.ID]
			if !ok {
				ra = &runArchive{}
				archives[subscription.ID] = ra
			}
			ra.add(elem)
		}

		return nil
	})

	if stats.Err != nil {
		log.Error().Err(stats.Err).Int("NumSaved", stats.Saved).Int("NumDiscarded", stats.Discarded).Msg("stopped saving observations")
	}

	for id, ra := range archives {
		if err := ra.write(myLibrary.ArchiveDir, subscriptions[id]); err != nil {
			log.Error().Err(err).Str("SubscriptionID", id.String()).Msg("could not archive run")
		}
	}
}

// consume hands each queued observation to save until save fails; the
// remaining observations are counted as discarded
func consume(queue <-chan *data.Observation, save func(*data.Observation) error) SaveStats {
	var stats SaveStats
	for elem := range queue {
		if stats.Err != nil {
			stats.Discarded++
			continue
		}

		if err := save(elem); err != nil {
			stats.Err = err
			stats.Discarded++
			continue
		}

		stats.Saved++
	}
	return stats
}

func saveObservation(ctx context.Context, conn *pgxpool.Conn, subscription *Subscription, elem *data.Observation) error {
	if elem.Earnings != nil {
		if err := elem.Earnings.SaveDB(ctx, subscription.DataTablesMap[data.EarningsKey], conn); err != nil {
			return fmt.Errorf("save earnings %s %s: %w", elem.Earnings.Ticker, elem.Earnings.EventDate.Format(time.DateOnly), err)
		}
	}

	if elem.Filing != nil {
		if err := elem.Filing.SaveDB(ctx, subscription.DataTablesMap[data.FilingsKey], conn); err != nil {
			return fmt.Errorf("save filing %s %s: %w", elem.Filing.Ticker, elem.Filing.QuarterEnd.Format(time.DateOnly), err)
		}
	}

	if elem.Holding != nil {
		if err := elem.Holding.SaveDB(ctx, subscription.DataTablesMap[data.HoldingsKey], conn); err != nil {
			return fmt.Errorf("save holding %s line %d: %w", elem.Holding.FilerCIK, elem.Holding.Line, err)
		}
	}

	if elem.Recommendation != nil {
		if err := elem.Recommendation.SaveDB(ctx, subscription.DataTablesMap[data.RecommendationKey], conn); err != nil {
			return fmt.Errorf("save recommendation %s %s: %w", elem.Recommendation.Ticker, elem.Recommendation.EventDate.Format(time.DateOnly), err)
		}
	}

	return nil
}

// RecordRun stores the outcome of a run on the subscription row
func (myLibrary *Library) RecordRun(ctx context.Context, summary data.RunSummary) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `UPDATE subscriptions SET
last_run = $2,
last_run_status = $7,
num_records_last_import = $3,
total_records = total_records + $3,
num_securities_last_import = $4,
total_securities = GREATEST(total_securities, $4),
first_obs_date = CASE WHEN $3 > 0 THEN LEAST(coalesce(first_obs_date, $5), $5) ELSE first_obs_date END,
last_obs_date = CASE WHEN $3 > 0 THEN GREATEST(coalesce(last_obs_date, $6), $6) ELSE last_obs_date END
WHERE id = $1`, summary.SubscriptionID, summary.EndTime, summary.NumObservations, summary.NumSecurities,
		summary.FirstObsDate, summary.LastObsDate, summary.Status.String())
	return err
}

// Subscriptions returns an array of subscription objects
func (myLibrary *Library) Subscriptions(ctx context.Context) ([]*Subscription, error) {
	var subscriptions []*Subscription
	err := pgxscan.Select(ctx, myLibrary.Pool, &subscriptions,
		`SELECT id, name, provider, dataset, config, data_tables, data_types, total_records,
num_records_last_import, total_securities, num_securities_last_import,
coalesce(first_obs_date, '0001-01-01'::timestamp) as first_obs_date,
coalesce(last_obs_date, '0001-01-01'::timestamp) as last_obs_date, schedule, health_check_id,
coalesce(last_run, '0001-01-01'::timestamp) as last_run, last_run_status, active, schema_version, created_on,
created_by FROM subscriptions`)
	for _, sub := range subscriptions {
		sub.Library = myLibrary

		sub.DataTablesMap = make(map[string]string, len(sub.DataTables))
		for idx, dataType := range sub.DataTypes {
			sub.DataTablesMap[dataType] = sub.DataTables[idx]
		}
	}
	return subscriptions, err
}

// SubscriptionFromID fetches a subscription from the library with the given ID
func (myLibrary *Library) SubscriptionFromID(ctx context.Context, id string) (*Subscription, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	subscription := &Subscription{
		Library: myLibrary,
	}

	rows, err := conn.Query(ctx, `SELECT id, name, provider, dataset, config,
	data_tables, data_types, total_records, num_records_last_import, total_securities,
	num_securities_last_import, coalesce(first_obs_date, '0001-01-01'::timestamp) as first_obs_date,
	coalesce(last_obs_date, '0001-01-01'::timestamp) as last_obs_date,
	schedule, health_check_id, coalesce(last_run, '0001-01-01'::timestamp) as last_run, last_run_status, active,
	schema_version, created_on, created_by FROM subscriptions WHERE id::text LIKE $1 || '%' LIMIT 1`, id)
	if err != nil {
		return nil, err
	}

	err = pgxscan.ScanOne(subscription, rows)
	if err != nil {
		return nil, err
	}

	// build DataTablesMap
	subscription.DataTablesMap = make(map[string]string, len(subscription.DataTables))
	for idx, dataType := range subscription.DataTypes {
		subscription.DataTablesMap[dataType] = subscription.DataTables[idx]
	}

	return subscription, nil
}
