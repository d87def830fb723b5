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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/edgar"
	"github.com/penny-vault/pvscrape/fetch"
)

var _ = Describe("DecodeConfig", func() {
	It("applies defaults when nothing is configured", func() {
		cfg := &nasdaqConfig{}
		Expect(DecodeConfig(map[string]string{}, cfg)).To(Succeed())
		Expect(cfg.BaseURL).To(Equal("http://www.nasdaq.com/earnings/earnings-calendar.aspx"))
		Expect(cfg.StartDate).To(Equal("2013-01-03"))
		Expect(cfg.RequestsPerSecond).To(BeNumerically("==", 1))
		Expect(cfg.Timeout).To(Equal(30 * time.Second))
		Expect(cfg.Browser).To(BeFalse())
	})

	It("keeps the default for blank values", func() {
		cfg := &nasdaqConfig{}
		Expect(DecodeConfig(map[string]string{"start_date": " ", "rate": ""}, cfg)).To(Succeed())
		Expect(cfg.StartDate).To(Equal("2013-01-03"))
		Expect(cfg.RequestsPerSecond).To(BeNumerically("==", 1))
	})

	It("decodes strings into typed fields", func() {
		cfg := &stockpupConfig{}
		Expect(DecodeConfig(map[string]string{
			"tickers":             "AAPL,KO",
			"ticker_interval":     "2s",
			"lookup_filing_dates": "false",
			"browser":             "true",
			"rate":                "0.5",
		}, cfg)).To(Succeed())
		Expect(cfg.Tickers).To(Equal([]string{"AAPL", "KO"}))
		Expect(cfg.TickerInterval).To(Equal(2 * time.Second))
		Expect(cfg.LookupFilingDates).To(BeFalse())
		Expect(cfg.Browser).To(BeTrue())
		Expect(cfg.RequestsPerSecond).To(BeNumerically("~", 0.5))
	})

	Describe("fetch options", func() {
		It("carries the configured retry settings", func() {
			cfg := &nasdaqConfig{}
			Expect(DecodeConfig(map[string]string{"retries": "5", "retry_wait": "250ms", "timeout": "10s"}, cfg)).To(Succeed())

			opts := cfg.options("nasdaq.user_agent")
			Expect(opts.Retries).To(Equal(5))
			Expect(opts.RetryWait).To(Equal(250 * time.Millisecond))
			Expect(opts.Timeout).To(Equal(10 * time.Second))
		})

		It("falls back to the default options for unset fields", func() {
			cfg := &FetchConfig{Browser: true}

			opts := cfg.options("zacks.user_agent")
			defaults := fetch.DefaultOptions()
			Expect(opts.Browser).To(BeTrue())
			Expect(opts.Retries).To(Equal(0))
			Expect(opts.Timeout).To(Equal(defaults.Timeout))
			Expect(opts.RetryWait).To(Equal(defaults.RetryWait))
			Expect(opts.RequestsPerSecond).To(Equal(defaults.RequestsPerSecond))
		})
	})

	It("rejects invalid values", func() {
		Expect(DecodeConfig(map[string]string{"base_url": "not a url"}, &nasdaqConfig{})).To(MatchError(ErrInvalidConfig))
		Expect(DecodeConfig(map[string]string{"start_date": "01/03/2013"}, &nasdaqConfig{})).To(MatchError(ErrInvalidConfig))
		Expect(DecodeConfig(map[string]string{"rate": "0"}, &nasdaqConfig{})).To(MatchError(ErrInvalidConfig))
	})

	It("requires tickers for recommendations", func() {
		Expect(DecodeConfig(map[string]string{}, &zacksConfig{})).To(MatchError(ErrInvalidConfig))

		cfg := &zacksConfig{}
		Expect(DecodeConfig(map[string]string{"tickers": "AAPL"}, cfg)).To(Succeed())
		Expect(cfg.BaseURL).To(Equal(ZacksResearchURL))
	})

	Describe("13F filers", func() {
		It("falls back to the default investors", func() {
			cfg := &edgarConfig{}
			Expect(DecodeConfig(map[string]string{}, cfg)).To(Succeed())
			Expect(cfg.SkipStale).To(BeTrue())
			Expect(cfg.EnrichFigi).To(BeTrue())
			Expect(cfg.filers()).To(Equal(edgar.DefaultFilers))
		})

		It("parses configured filers", func() {
			cfg := &edgarConfig{}
			Expect(DecodeConfig(map[string]string{"filers": "Buffett:0001067983:12,Akre:0001112520"}, cfg)).To(Succeed())
			Expect(cfg.filers()).To(Equal([]edgar.Filer{
				{Name: "Buffett", CIK: "0001067983", TopN: 12},
				{Name: "Akre", CIK: "0001112520", TopN: 10},
			}))
		})

		It("rejects malformed filers", func() {
			Expect(DecodeConfig(map[string]string{"filers": "Buffett"}, &edgarConfig{})).To(MatchError(ErrInvalidConfig))
		})
	})
})
