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
	"fmt"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/edgar"
)

// fixedFilingDates answers filing date lookups from a map keyed by the
// search bound
type fixedFilingDates struct {
	dates   map[time.Time]time.Time
	forms   []string
	ciks    []string
	lookups int
}

func (lookup *fixedFilingDates) FilingDate(_ context.Context, cik, formPrefix string, before time.Time) (time.Time, error) {
	lookup.lookups++
	lookup.ciks = append(lookup.ciks, cik)
	lookup.forms = append(lookup.forms, formPrefix)
	if dt, ok := lookup.dates[before]; ok {
		return dt, nil
	}
	return time.Time{}, fmt.Errorf("%w: cik %s", edgar.ErrNoFilings, cik)
}

var _ = Describe("Stockpup", func() {
	Describe("ParseStockpupIndex", func() {
		It("lists each csv file once", func() {
			content, err := os.ReadFile("testdata/stockpup_index.html")
			Expect(err).To(BeNil())

			files, err := ParseStockpupIndex(content, "http://www.stockpup.com/data/")
			Expect(err).To(BeNil())
			Expect(files).To(HaveLen(3))
			Expect(files[0].Ticker).To(Equal("AAPL"))
			Expect(files[0].URL).To(Equal("http://www.stockpup.com/data/AAPL_quarterly_financial_data.csv"))
			Expect(files[1].Ticker).To(Equal("KO"))
			Expect(files[2].Ticker).To(Equal("MSFT"))
		})

		It("filters by ticker", func() {
			files := []*StockpupFile{{Ticker: "AAPL"}, {Ticker: "KO"}, {Ticker: "MSFT"}}
			Expect(filterStockpupFiles(files, []string{"ko", "msft"})).To(HaveLen(2))
			Expect(filterStockpupFiles(files, nil)).To(HaveLen(3))
		})
	})

	Describe("ParseStockpupCSV", func() {
		var filings []*data.Filing

		BeforeEach(func() {
			content, err := os.ReadFile("testdata/AAPL_quarterly_financial_data.csv")
			Expect(err).To(BeNil())
			filings, err = ParseStockpupCSV(content, "AAPL")
			Expect(err).To(BeNil())
		})

		It("sorts quarters in ascending order", func() {
			Expect(filings).To(HaveLen(3))
			Expect(filings[0].QuarterEnd).To(Equal(time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC)))
			Expect(filings[1].QuarterEnd).To(Equal(time.Date(2017, 9, 30, 0, 0, 0, 0, time.UTC)))
			Expect(filings[2].QuarterEnd).To(Equal(time.Date(2017, 12, 30, 0, 0, 0, 0, time.UTC)))
		})

		It("maps columns by header name", func() {
			latest := filings[2]
			Expect(latest.Ticker).To(Equal("AAPL"))
			Expect(latest.FilingDate).To(BeNil())
			Expect(*latest.Shares).To(Equal(int64(5157787000)))
			Expect(*latest.Revenue).To(BeNumerically("~", 88293000000))
			Expect(*latest.EPSDiluted).To(BeNumerically("~", 3.89))
			Expect(*latest.OperatingCash).To(BeNumerically("~", 28293000000))
			Expect(*latest.BookValuePerShare).To(BeNumerically("~", 27.18))
			Expect(*latest.CurrentRatio).To(BeNumerically("~", 1.24))
			Expect(data.Validate(latest)).To(Succeed())
		})

		It("stores None and blank values as null", func() {
			Expect(filings[0].GoodwillAndIntangibles).To(BeNil())
			Expect(filings[0].FreeCashFlowPerShare).To(BeNil())
			Expect(filings[0].CurrentRatio).To(BeNil())
		})

		It("keeps only quarters after the checkpoint", func() {
			Expect(filingsAfter(filings, time.Time{})).To(HaveLen(3))
			pending := filingsAfter(filings, time.Date(2017, 9, 30, 0, 0, 0, 0, time.UTC))
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].QuarterEnd).To(Equal(time.Date(2017, 12, 30, 0, 0, 0, 0, time.UTC)))
			Expect(filingsAfter(filings, time.Date(2018, 3, 31, 0, 0, 0, 0, time.UTC))).To(BeEmpty())
		})

		It("bounds the filing date search by the next quarter", func() {
			now := time.Date(2018, 2, 15, 0, 0, 0, 0, time.UTC)
			Expect(filingDateProxy(filings, 0, now)).To(Equal(filings[1].QuarterEnd))
			Expect(filingDateProxy(filings, 2, now)).To(Equal(now))
		})
	})

	Describe("resolveFilingDates", func() {
		var (
			filings []*data.Filing
			now     time.Time
		)

		BeforeEach(func() {
			content, err := os.ReadFile("testdata/AAPL_quarterly_financial_data.csv")
			Expect(err).To(BeNil())
			filings, err = ParseStockpupCSV(content, "AAPL")
			Expect(err).To(BeNil())
			now = time.Date(2018, 2, 15, 0, 0, 0, 0, time.UTC)
		})

		It("dates every quarter from its filing", func() {
			lookup := &fixedFilingDates{dates: map[time.Time]time.Time{
				filings[1].QuarterEnd: time.Date(2017, 8, 2, 0, 0, 0, 0, time.UTC),
				filings[2].QuarterEnd: time.Date(2017, 11, 3, 0, 0, 0, 0, time.UTC),
				now:                   time.Date(2018, 2, 2, 0, 0, 0, 0, time.UTC),
			}}

			Expect(resolveFilingDates(context.Background(), lookup, "0000320193", filings, now)).To(Equal(0))
			Expect(*filings[0].FilingDate).To(Equal(time.Date(2017, 8, 2, 0, 0, 0, 0, time.UTC)))
			Expect(*filings[1].FilingDate).To(Equal(time.Date(2017, 11, 3, 0, 0, 0, 0, time.UTC)))
			Expect(*filings[2].FilingDate).To(Equal(time.Date(2018, 2, 2, 0, 0, 0, 0, time.UTC)))
			Expect(lookup.forms).To(HaveEach(edgar.FormQuarterlyOrAnnual))
			Expect(lookup.ciks).To(HaveEach("0000320193"))
		})

		It("leaves the filing date null when the lookup fails", func() {
			lookup := &fixedFilingDates{dates: map[time.Time]time.Time{
				filings[2].QuarterEnd: time.Date(2017, 11, 3, 0, 0, 0, 0, time.UTC),
			}}

			Expect(resolveFilingDates(context.Background(), lookup, "0000320193", filings, now)).To(Equal(2))
			Expect(lookup.lookups).To(Equal(3))
			Expect(filings[0].FilingDate).To(BeNil())
			Expect(*filings[1].FilingDate).To(Equal(time.Date(2017, 11, 3, 0, 0, 0, 0, time.UTC)))
			Expect(filings[2].FilingDate).To(BeNil())

			for _, filing := range filings {
				Expect(data.Validate(filing)).To(Succeed())
			}
		})
	})

	DescribeTable("parseStockpupDate",
		func(input string, expected time.Time) {
			dt, err := parseStockpupDate(input)
			Expect(err).To(BeNil())
			Expect(dt).To(Equal(expected))
		},
		Entry("iso", "2017-12-30", time.Date(2017, 12, 30, 0, 0, 0, 0, time.UTC)),
		Entry("day first", "30/12/2017", time.Date(2017, 12, 30, 0, 0, 0, 0, time.UTC)),
		Entry("day first without padding", "1/7/2017", time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC)),
	)

	It("rejects unknown date formats", func() {
		_, err := parseStockpupDate("Q4 2017")
		Expect(err).To(MatchError(ErrUnknownDateFormat))
	})
})
