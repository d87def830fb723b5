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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// disableCmd represents the disable command
var disableCmd = &cobra.Command{
	Use:   "disable <subscription-id>",
	Short: "Pause subscriptions without deleting their data",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		for _, id := range args {
			sub, err := myLibrary.SubscriptionFromID(ctx, id)
			if err != nil {
				log.Fatal().Err(err).Str("SubscriptionID", id).Msg("could not get subscription for ID")
			}

			if err := sub.Deactivate(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not deactivate subscription")
			}

			log.Info().Str("SubscriptionID", id).Str("SubscriptionName", sub.Name).Msg("subscription disabled")
		}
	},
}

func init() {
	rootCmd.AddCommand(disableCmd)
}
