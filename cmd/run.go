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
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hako/durafmt"
	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/healthcheck"
	"github.com/penny-vault/pvscrape/library"
	"github.com/penny-vault/pvscrape/provider"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errRunFailed = errors.New("subscription run failed")

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [subscription-id...]",
	Short: "Run data import subscriptions",
	Long: `The run sub-command executes subscriptions and saves the data they generate. If no
arguments are provided then run will execute as a daemon and execute each subscription at the
scheduled times. If subscription IDs are provided then each subscription will execute
sequentially (ignoring any set schedule).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// load the library
		myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to library")
		}
		defer myLibrary.Close()

		myLibrary.ArchiveDir = viper.GetString("archive.dir")

		// check if we are running in daemon mode
		if len(args) == 0 {
			if err := runDaemon(ctx, myLibrary); err != nil {
				log.Fatal().Err(err).Msg("scheduler failed")
			}
			return
		}

		// not daemon mode, execute each subscription individually
		failed := false
		for _, subscriptionID := range args {
			subscription, err := myLibrary.SubscriptionFromID(ctx, subscriptionID)
			if err != nil {
				log.Fatal().Err(err).Str("SubscriptionID", subscriptionID).Msg("could not load subscription")
			}

			if err := runSubscription(ctx, subscription); err != nil {
				log.Error().Err(err).Str("SubscriptionID", subscription.ID.String()).Msg("run did not complete successfully")
				failed = true
			}
		}

		if failed {
			os.Exit(1)
		}
	},
}

// runDaemon schedules every active subscription on its cron schedule and
// blocks until ctx is cancelled. Runs never overlap.
func runDaemon(ctx context.Context, myLibrary *library.Library) error {
	subscriptions, err := myLibrary.Subscriptions(ctx)
	if err != nil {
		return err
	}

	var runMu sync.Mutex
	scheduler := cron.New(cron.WithLocation(time.Local))

	numScheduled := 0
	for _, subscription := range subscriptions {
		if !subscription.Active {
			continue
		}

		sub := subscription
		_, err := scheduler.AddFunc(sub.Schedule, func() {
			runMu.Lock()
			defer runMu.Unlock()

			if err := runSubscription(ctx, sub); err != nil {
				log.Error().Err(err).Str("SubscriptionID", sub.ID.String()).Msg("scheduled run did not complete successfully")
			}
		})
		if err != nil {
			log.Error().Err(err).Str("SubscriptionID", sub.ID.String()).Str("Schedule", sub.Schedule).Msg("invalid schedule; subscription will not run")
			continue
		}

		numScheduled++
		log.Info().Str("SubscriptionID", sub.ID.String()).Str("Name", sub.Name).Str("Schedule", sub.Schedule).Msg("scheduled subscription")
	}

	if numScheduled == 0 {
		log.Warn().Msg("no active subscriptions to schedule")
	}

	scheduler.Start()
	for _, entry := range scheduler.Entries() {
		log.Info().Int("EntryID", int(entry.ID)).Time("NextRun", entry.Next).Msg("next scheduled run")
	}

	<-ctx.Done()
	log.Info().Msg("stopping scheduler; waiting for running imports to finish")
	<-scheduler.Stop().Done()

	return nil
}

// runSubscription fetches the subscription's dataset and saves everything it
// publishes. The outcome is recorded on the subscription and reported to its
// healthcheck.
func runSubscription(ctx context.Context, subscription *library.Subscription) error {
	subProvider, ok := provider.Map[subscription.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrProviderNotFound, subscription.Provider)
	}

	subDataset, ok := subProvider.Datasets()[subscription.Dataset]
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrDatasetNotFound, subscription.Dataset)
	}

	fetchLogger := log.With().Str("SubscriptionID", subscription.ID.String()).Str("Subscription", subscription.Name).Logger()
	ctx = fetchLogger.WithContext(ctx)

	if subscription.HealthCheckID != "" {
		if err := healthcheck.Start(subscription.HealthCheckID); err != nil {
			fetchLogger.Warn().Err(err).Msg("could not signal run start to healthcheck")
		}
	}

	fetchLogger.Info().Str("Provider", subscription.Provider).Str("Dataset", subscription.Dataset).Msg("starting import")

	outChan := make(chan *data.Observation, 1000)
	exitNotification := make(chan data.RunSummary, 1)

	var (
		wg        sync.WaitGroup
		saveStats library.SaveStats
	)
	wg.Add(1)
	go subscription.Library.SaveObservations(outChan, &wg, &saveStats)
	go subDataset.Fetch(ctx, subscription, outChan, exitNotification)

	summary := <-exitNotification
	close(outChan)
	wg.Wait()

	if saveStats.Err != nil {
		fetchLogger.Error().Err(saveStats.Err).Int("NumDiscarded", saveStats.Discarded).Msg("observations were not saved; marking run failed")
		summary.Status = data.RunFailed
		summary.NumObservations = saveStats.Saved
	}

	if err := subscription.Library.RecordRun(ctx, summary); err != nil {
		fetchLogger.Error().Err(err).Msg("could not record run on subscription")
	}

	failed := summary.Status != data.RunSuccess
	if subscription.HealthCheckID != "" {
		if err := healthcheck.Ping(subscription.HealthCheckID, failed); err != nil {
			fetchLogger.Warn().Err(err).Msg("could not ping healthcheck")
		}
	}

	fetchLogger.Info().
		Str("RunTime", durafmt.Parse(summary.EndTime.Sub(summary.StartTime)).LimitFirstN(2).String()).
		Int("NumObservations", summary.NumObservations).
		Int("NumSecurities", summary.NumSecurities).
		Stringer("Status", summary.Status).
		Msg("import finished")

	if failed {
		return errRunFailed
	}

	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
