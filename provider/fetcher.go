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
package provider

import (
	"time"

	"github.com/penny-vault/pvscrape/fetch"
	"github.com/spf13/viper"
)

// FetchConfig holds the page retrieval settings shared by every scraper.
// Zero durations and rates fall back to fetch.DefaultOptions.
type FetchConfig struct {
	Browser           bool          `config:"browser"`
	RequestsPerSecond float64       `config:"rate" default:"1" validate:"gt=0"`
	Timeout           time.Duration `config:"timeout" default:"30s"`
	Retries           int           `config:"retries" default:"3" validate:"gte=0"`
	RetryWait         time.Duration `config:"retry_wait" default:"1s"`
}

// NewFetcher builds a fetcher from the config. The user agent is taken from
// userAgentKey in the application config, falling back to user_agent.
func (cfg *FetchConfig) NewFetcher(userAgentKey string) (fetch.Fetcher, error) {
	return fetch.New(cfg.options(userAgentKey))
}

func (cfg *FetchConfig) options(userAgentKey string) fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Browser = cfg.Browser
	opts.Retries = cfg.Retries

	opts.UserAgent = viper.GetString(userAgentKey)
	if opts.UserAgent == "" {
		opts.UserAgent = viper.GetString("user_agent")
	}

	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.RetryWait > 0 {
		opts.RetryWait = cfg.RetryWait
	}
	if cfg.RequestsPerSecond > 0 {
		opts.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if viper.IsSet("playwright.headless") {
		opts.Headless = viper.GetBool("playwright.headless")
	}

	return opts
}
