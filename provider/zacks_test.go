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
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/fetch"
)

var _ = Describe("Zacks", func() {
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	readFixture := func(fn string) []byte {
		content, err := os.ReadFile(fn)
		Expect(err).To(BeNil())
		return content
	}

	Describe("ParseRecommendation", func() {
		It("reads the positional rows", func() {
			rec, err := ParseRecommendation(readFixture("testdata/zacks_recommendations.html"), "AAPL", day)
			Expect(err).To(BeNil())
			Expect(rec.Ticker).To(Equal("AAPL"))
			Expect(rec.EventDate).To(Equal(day))
			Expect(*rec.ABR).To(BeNumerically("~", 1.35))
			Expect(*rec.NumRecommendations).To(Equal(int32(28)))
			Expect(*rec.AverageTargetPrice).To(BeNumerically("~", 201.55))
			Expect(*rec.Industry).To(Equal("Computer - Mini computers"))
			Expect(*rec.IndustryRank).To(Equal("Bottom 38% (155 out of 250)"))
			Expect(rec.Details).To(HaveLen(5))
			Expect(rec.Details).To(HaveKeyWithValue("ABR", "1.35"))
			Expect(rec.Details).NotTo(HaveKey("Last Updated"))
			Expect(data.Validate(rec)).To(Succeed())
		})

		It("scans every row when the layout moved", func() {
			rec, err := ParseRecommendation(readFixture("testdata/zacks_moved.html"), "KO", day)
			Expect(err).To(BeNil())
			Expect(*rec.ABR).To(BeNumerically("~", 2.10))
			Expect(*rec.NumRecommendations).To(Equal(int32(16)))
			Expect(*rec.AverageTargetPrice).To(BeNumerically("~", 68.20))
			Expect(*rec.Industry).To(Equal("Beverages - Soft drinks"))
			Expect(rec.IndustryRank).To(BeNil())
		})

		It("fails when nothing is recognised", func() {
			_, err := ParseRecommendation(readFixture("testdata/zacks_missing.html"), "XYZ", day)
			Expect(err).To(MatchError(ErrNoRecommendation))
		})
	})

	Describe("FetchRecommendation", func() {
		var (
			server *httptest.Server
			paths  []string
		)

		BeforeEach(func() {
			paths = nil
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				paths = append(paths, r.URL.Path)
				if r.URL.Path == "/stock/research/AAPL/brokerage-recommendations" {
					_, _ = w.Write(readFixture("testdata/zacks_recommendations.html"))
					return
				}
				w.WriteHeader(http.StatusNotFound)
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("requests the brokerage recommendations page of the ticker", func() {
			rec, err := FetchRecommendation(context.Background(), fetch.NewHTTP(fetch.Options{}), server.URL+"/stock/research/", " aapl", day)
			Expect(err).To(BeNil())
			Expect(rec.Ticker).To(Equal("AAPL"))
			Expect(paths).To(Equal([]string{"/stock/research/AAPL/brokerage-recommendations"}))
		})

		It("returns the status error for unknown tickers", func() {
			_, err := FetchRecommendation(context.Background(), fetch.NewHTTP(fetch.Options{}), server.URL+"/stock/research", "NOPE", day)
			Expect(err).To(MatchError(fetch.ErrStatus))
		})
	})
})
