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
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/healthcheck"
	"github.com/rs/zerolog/log"
)

type Subscription struct {
	ID   uuid.UUID
	Name string

	Provider string
	Dataset  string
	Config   map[string]string

	DataTables    []string
	DataTypes     []string
	DataTablesMap map[string]string

	TotalRecords         int64
	NumRecordsLastImport int64

	TotalSecurities         int64
	NumSecuritiesLastImport int64

	FirstObsDate time.Time
	LastObsDate  time.Time

	Schedule      string
	HealthCheckID string
	LastRun       time.Time
	LastRunStatus string
	Active        bool
	SchemaVersion int

	CreatedOn time.Time
	CreatedBy string

	Library *Library
}

// Delete the subscription from database along with all associated tables
func (subscription *Subscription) Delete(ctx context.Context) error {
	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Msg("error rollingback tx")
			}
		}
	}()

	// delete tables
	for _, tblName := range subscription.DataTables {
		log.Info().Str("TableName", tblName).Msg("delete table")
		_, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", tblName))
		if err != nil {
			return err
		}
	}

	// delete subscription entry
	if _, err := tx.Exec(ctx, "DELETE FROM subscriptions WHERE id=$1", subscription.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// now that all database related modification has succeeded delete any corresponding health check
	if subscription.HealthCheckID != "" {
		if err := healthcheck.Delete(subscription.HealthCheckID); err != nil {
			return err
		}
	}

	return nil
}

// Activate the subscription
func (subscription *Subscription) Activate(ctx context.Context) error {
	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Msg("error rollingback tx")
			}
		}
	}()

	// activate subscription entry
	if _, err := tx.Exec(ctx, "UPDATE subscriptions SET active='t' WHERE id=$1", subscription.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// now that all database related modification has succeeded resume any corresponding health check
	if subscription.HealthCheckID != "" {
		if err := healthcheck.Resume(subscription.HealthCheckID); err != nil {
			return err
		}
	}

	return nil
}

// Deactivate the subscription; all data is still saved in the database but the subscription
// is marked as inactive and it won't show up in reports
func (subscription *Subscription) Deactivate(ctx context.Context) error {
	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Msg("error rollingback tx")
			}
		}
	}()

	// de-activate subscription entry
	if _, err := tx.Exec(ctx, "UPDATE subscriptions SET active='f' WHERE id=$1", subscription.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// now that all database related modification has succeeded pause any corresponding health check
	if subscription.HealthCheckID != "" {
		if err := healthcheck.Pause(subscription.HealthCheckID); err != nil {
			return err
		}
	}

	return nil
}

// Save the subscription to the database
func (subscription *Subscription) Save(ctx context.Context) error {
	conn, err := subscription.Library.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Msg("error rollingback tx")
			}
		}
	}()

	// create table structure for each data type this dataset produces
	if err := subscription.createTables(ctx, tx); err != nil {
		return err
	}

	// make sure current user is set on subscription
	if user, err := user.Current(); err != nil {
		return err
	} else {
		subscription.CreatedBy = user.Username
	}

	// create an entry in the subscription table
	if _, err := tx.Exec(ctx, `INSERT INTO subscriptions
("id", "name", "provider", "dataset", "config", "data_tables", "data_types",
 "schedule", "health_check_id", "schema_version", "created_by")
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`, subscription.ID.String(),
		subscription.Name, subscription.Provider, subscription.Dataset, subscription.Config,
		subscription.DataTables, subscription.DataTypes, subscription.Schedule,
		subscription.HealthCheckID, subscription.SchemaVersion, subscription.CreatedBy); err != nil {
		return err
	}

	// commit to database
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return nil
}

// Compute table names based on subscription data types
func (subscription *Subscription) ComputeTableNames() {
	ret := make([]string, len(subscription.DataTypes))
	subscription.DataTablesMap = make(map[string]string, len(subscription.DataTypes))
	for idx, dataType := range subscription.DataTypes {
		tbl := slug.Make(fmt.Sprintf("%s %s %s %s", subscription.Provider, subscription.Dataset, dataType, subscription.ID.String()[:5]))
		tbl = strings.ReplaceAll(tbl, "-", "_")
		ret[idx] = tbl

		subscription.DataTablesMap[dataType] = tbl
	}

	subscription.DataTables = ret
}

func (subscription *Subscription) createTables(ctx context.Context, tx pgx.Tx) error {
	for idx, dataTypeName := range subscription.DataTypes {
		dataType := data.DataTypes[dataTypeName]
		schema := dataType.ExpandedSchema(subscription.DataTables[idx])
		_, err := tx.Exec(ctx, schema)
		if err != nil {
			return err
		}
	}
	return nil
}
