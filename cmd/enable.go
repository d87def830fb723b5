/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// enableCmd represents the enable command
var enableCmd = &cobra.Command{
	Use:   "enable <subscription-id...>",
	Short: "Resume scheduled runs of inactive subscriptions",
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

			if sub.Active {
				log.Info().Str("SubscriptionID", id).Str("SubscriptionName", sub.Name).Msg("subscription is already active")
				continue
			}

			if err := sub.Activate(ctx); err != nil {
				log.Fatal().Err(err).Str("SubscriptionID", id).Msg("could not activate subscription")
			}

			log.Info().Str("SubscriptionID", id).Str("SubscriptionName", sub.Name).Msg("subscription enabled")
		}
	},
}

func init() {
	rootCmd.AddCommand(enableCmd)
}
