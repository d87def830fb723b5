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
	"fmt"
	"math/rand"
	"os"
	"strings"
	"unicode"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/gosimple/slug"
	"github.com/penny-vault/pvscrape/healthcheck"
	"github.com/penny-vault/pvscrape/library"
	"github.com/penny-vault/pvscrape/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	subscribeDataset  string
	subscribeSchedule string
	subscribeSettings []string
	subscribeYes      bool
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <data provider>",
	Short: "Create a new subscription",
	Long: `Subscriptions are the primary mechanism pvscrape uses to import
data. To create a new subscription select the data provider desired and
the wizard will walk you through the rest of the process to setup a new
subscription.

When creating a subscription a couple of things happen:

    1. Configuration, like the tickers to follow, is saved in the library
    2. Database tables are initialized
    3. A regular import schedule is defined

Pass --yes together with --dataset and --set to create a subscription
without the wizard.

Also see: providers, unsubscribe`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			dataProvider provider.Provider
			ok           bool
			confirmed    bool
			monitored    bool

			subName     string
			subDataset  string
			subSchedule string
		)

		ctx := context.Background()

		myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to library")
		}

		// check if data provider exists
		providerName := args[0]
		if dataProvider, ok = provider.Map[providerName]; !ok {
			fmt.Printf("Data Provider '%s' doesn't exist.\n", providerName)
			fmt.Printf("Run `pvscrape providers` for a complete list of available providers\n")
			os.Exit(1)
		}

		r := []rune(dataProvider.Name())
		subName = string(append([]rune{unicode.ToUpper(r[0])}, r[1:]...))

		subSchedule = subscribeSchedule
		if subSchedule == "" {
			minuteChoice := rand.Intn(12) * 5
			hourChoice := rand.Intn(9)
			subSchedule = fmt.Sprintf("%d %d * * 1-5", minuteChoice, hourChoice)
		}

		// build a dataset selection field
		datasets := dataProvider.Datasets()
		datasetOptions := make([]huh.Option[string], 0, len(datasets))
		for _, k := range sortedKeys(datasets) {
			datasetOptions = append(datasetOptions, huh.NewOption[string](datasets[k].Name, k))
		}

		subDataset = subscribeDataset
		if subDataset == "" && len(datasets) == 1 {
			subDataset = sortedKeys(datasets)[0]
		}

		presets := make(map[string]string, len(subscribeSettings))
		for _, setting := range subscribeSettings {
			key, val, found := strings.Cut(setting, "=")
			if !found {
				log.Fatal().Str("Setting", setting).Msg("settings must be formatted as key=value")
			}
			presets[strings.TrimSpace(key)] = val
		}

		// create a new field group for configuring the provider
		configDescription := dataProvider.ConfigDescription()
		configFields := make([]huh.Field, 0, len(configDescription))
		config := make(map[string]*string, len(configDescription))
		for _, k := range sortedKeys(configDescription) {
			val := presets[k]
			config[k] = &val
			configFields = append(configFields, huh.NewInput().Title(configDescription[k]).Description(k).Value(config[k]))
		}

		if !subscribeYes {
			// walk user through settings required for subscription
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("What should the subscription be named?").
						Value(&subName),
					huh.NewSelect[string]().
						Title("Which dataset do you want to subscribe to?").
						Options(datasetOptions...).
						Value(&subDataset),
					huh.NewInput().
						Title("What schedule should the subscription run on?").
						Value(&subSchedule),
					huh.NewConfirm().
						Title("Should a healthcheck.io monitor be created for the subscription?").
						Value(&monitored),
				),
				huh.NewGroup(configFields...),
			)

			err = form.Run()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create wizard")
			}
		}

		// build configuration map
		subConfig := make(map[string]string, len(config))
		for k, v := range config {
			if strings.TrimSpace(*v) != "" {
				subConfig[k] = strings.TrimSpace(*v)
			}
		}

		// create a new subscription
		subscription, err := provider.NewSubscription(providerName, subDataset, subConfig, myLibrary)
		if err != nil {
			log.Fatal().Err(err).Str("Provider", providerName).Str("Dataset", subDataset).Msg("could not create subscription")
		}

		subscription.Name = subName
		subscription.Schedule = subSchedule

		// Print subscription summary
		{
			var sb strings.Builder
			keyword := func(s string) string {
				return lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render(s)
			}

			isMonitored := "no"
			if monitored {
				isMonitored = "yes"
			}

			fmt.Fprintf(&sb,
				"%s\n\nID: %s\nName: %s\nProvider: %s\nDataset: %s\nSchedule: %s\nMonitored: %s\n\n",
				lipgloss.NewStyle().Bold(true).Render("NEW SUBSCRIPTION"),
				keyword(subscription.ID.String()),
				keyword(subscription.Name),
				keyword(subscription.Provider),
				keyword(subscription.Dataset),
				keyword(subscription.Schedule),
				keyword(isMonitored),
			)

			fmt.Fprintln(&sb, lipgloss.NewStyle().Bold(true).Render("Provider Configuration"))
			for _, k := range sortedKeys(subscription.Config) {
				fmt.Fprintf(&sb, "\n%s: %s", k, keyword(subscription.Config[k]))
			}

			fmt.Println(
				lipgloss.NewStyle().
					Width(60).
					BorderStyle(lipgloss.RoundedBorder()).
					BorderForeground(lipgloss.Color("63")).
					Padding(1, 2).
					Render(sb.String()),
			)
		}

		confirmed = subscribeYes
		if !confirmed {
			confirmForm := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Create subscription?").
						Value(&confirmed),
				),
			)

			err = confirmForm.Run()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create wizard")
			}
		}

		if confirmed {
			if monitored {
				checkSlug := slug.Make(fmt.Sprintf("%s %s %s %s", subscription.Name, subscription.Provider, subscription.Dataset, subscription.ID.String()[:5]))
				checkID, err := healthcheck.Create(
					fmt.Sprintf("%s %s (%s)", subscription.Name, subscription.Dataset, subscription.ID.String()[:5]),
					checkSlug,
					subscription.DataTypes,
					subscription.Schedule,
				)
				if err != nil {
					log.Fatal().Err(err).Msg("creating healthcheck failed")
				}
				subscription.HealthCheckID = checkID
			}

			if err := subscription.Save(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed saving subscription")
			}

			log.Info().Str("SubscriptionID", subscription.ID.String()).Msg("subscription created")
		} else {
			log.Info().Msg("Not saving subscription")
		}
	},
}

func init() {
	rootCmd.AddCommand(subscribeCmd)

	subscribeCmd.Flags().StringVar(&subscribeDataset, "dataset", "", "dataset to subscribe to")
	subscribeCmd.Flags().StringVar(&subscribeSchedule, "schedule", "", "cron schedule (default is a random time before 9am on weekdays)")
	subscribeCmd.Flags().StringArrayVar(&subscribeSettings, "set", nil, "provider configuration as key=value (repeatable)")
	subscribeCmd.Flags().BoolVarP(&subscribeYes, "yes", "y", false, "create the subscription without prompting")
}
