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
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/pvscrape/db"
	"github.com/penny-vault/pvscrape/library"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errUserAgentRequired = errors.New("EDGAR requires a user agent with contact details")

type dbSettings struct {
	URL string `toml:"url"`
}

type edgarSettings struct {
	UserAgent string `toml:"user_agent"`
}

type archiveSettings struct {
	Dir string `toml:"dir,omitempty"`
}

// settingsFile is the layout of $HOME/.pvscrape.toml
type settingsFile struct {
	DB      dbSettings      `toml:"db"`
	Edgar   edgarSettings   `toml:"edgar"`
	Archive archiveSettings `toml:"archive"`
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Gather database configuration and setup schema",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary := &library.Library{}
		settings := settingsFile{}

		form := huh.NewForm(
			// Gather details about the library and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the library a name:").
					Value(&myLibrary.Name),

				huh.NewInput().
					Title("Who owns the library?").
					Value(&myLibrary.Owner),
			),

			// Get details about the database
			huh.NewGroup(
				huh.NewInput().
					Title("Provide the DSN for connecting to your PostgreSQL database (postgres://[user[:password]@][netloc][:port][/dbname][?param1=value1&...])").
					Value(&myLibrary.DBUrl).
					Validate(func(dsn string) error {
						_, err := pgx.ParseConfig(dsn)
						return err
					}),
			),

			// SEC asks automated clients to identify themselves
			huh.NewGroup(
				huh.NewInput().
					Title("User agent for SEC EDGAR requests (e.g. 'Sample Company admin@example.com'):").
					Value(&settings.Edgar.UserAgent).
					Validate(func(ua string) error {
						if strings.TrimSpace(ua) == "" {
							return errUserAgentRequired
						}
						return nil
					}),
				huh.NewInput().
					Title("Directory to keep a parquet copy of every run in (blank to disable):").
					Value(&settings.Archive.Dir),
			),
		)

		err := form.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("error gathering database settings")
		}

		log.Info().Msg("creating database tables")

		// run migration
		dbURL := strings.Replace(myLibrary.DBUrl, "postgres://", "pgx5://", -1)
		err = db.Migrate(dbURL)
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("error running database migration")
		}

		log.Info().Msg("database tables created")
		log.Info().Msg("Saving library name and owner to database")

		// save library name and owner to database
		if err := myLibrary.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		defer myLibrary.Close()

		err = myLibrary.SaveDB(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error saving library settings to database")
		}

		// save database settings to config file
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("could not determine user home directory")
		}

		settings.DB.URL = myLibrary.DBUrl

		configFN := filepath.Join(home, ".pvscrape.toml")
		log.Info().Str("ConfigFile", configFN).Msg("Saving database connection info to config file")
		configData, err := toml.Marshal(settings)
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		err = os.WriteFile(configFN, configData, 0600)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Msg("Your data library has been initialized")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
