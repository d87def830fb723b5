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
package edgar_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pvscrape/data"
	"github.com/penny-vault/pvscrape/edgar"
)

var _ = Describe("ParseSubmission", func() {
	Context("with an XML information table", func() {
		var holdings []*data.Holding

		BeforeEach(func() {
			content, err := os.ReadFile("testdata/submission_xml.txt")
			Expect(err).To(BeNil())

			holdings, err = edgar.ParseSubmission(content, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
		})

		It("reads every infoTable entry", func() {
			Expect(holdings).To(HaveLen(5))
			for idx, holding := range holdings {
				Expect(holding.Line).To(Equal(int32(idx + 1)))
				Expect(holding.ReportDate).To(Equal(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
				Expect(data.Validate(&data.Holding{
					FilerCIK:   "0001067983",
					ReportDate: holding.ReportDate,
					FilingDate: holding.FilingDate,
					Line:       holding.Line,
					Security:   holding.Security,
					Cusip:      holding.Cusip,
					OptionType: holding.OptionType,
				})).To(Succeed())
			}
		})

		It("maps the table fields", func() {
			apple := holdings[0]
			Expect(apple.Security).To(Equal("APPLE INC"))
			Expect(apple.Title).To(Equal("COM"))
			Expect(apple.Cusip).To(Equal("037833100"))
			Expect(apple.Quantity).To(Equal(int64(100)))
			Expect(apple.SecurityType).To(Equal("SH"))
			Expect(apple.OptionType).To(Equal(data.OptionNone))
			Expect(apple.VotingAuthority).To(Equal("100/0/0"))
		})

		It("keeps dollar values for recent filings", func() {
			Expect(holdings[0].Value).To(Equal(int64(1000)))
		})

		It("appends put and call to the security name", func() {
			spy := holdings[4]
			Expect(spy.Security).To(Equal("SPDR S&P 500 ETF TR Put"))
			Expect(spy.OptionType).To(Equal(data.OptionPut))
		})

		It("scales values reported in thousands", func() {
			content, err := os.ReadFile("testdata/submission_xml.txt")
			Expect(err).To(BeNil())

			older, err := edgar.ParseSubmission(content, time.Date(2022, 11, 14, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(older[0].Value).To(Equal(int64(1_000_000)))
		})
	})

	Context("with a text table", func() {
		It("chunks the cells into rows of six", func() {
			content, err := os.ReadFile("testdata/submission_text.txt")
			Expect(err).To(BeNil())

			holdings, err := edgar.ParseSubmission(content, time.Date(2012, 2, 14, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(holdings).To(HaveLen(3))

			Expect(holdings[0].ReportDate).To(Equal(time.Date(2011, 12, 31, 0, 0, 0, 0, time.UTC)))
			Expect(holdings[0].Security).To(Equal("AMERICAN EXPRESS CO"))
			Expect(holdings[0].SecurityType).To(Equal("COM"))
			Expect(holdings[0].Cusip).To(Equal("025816109"))
			Expect(holdings[0].Value).To(Equal(int64(7_151_000)))
			Expect(holdings[0].Quantity).To(Equal(int64(151_610)))
			Expect(holdings[0].VotingAuthority).To(Equal("SOLE"))

			Expect(holdings[2].Security).To(Equal("JOHNSON & JOHNSON"))
			Expect(holdings[2].VotingAuthority).To(Equal("SHARED"))
		})
	})

	It("requires a report period", func() {
		_, err := edgar.ParseSubmission([]byte("<SEC-DOCUMENT>\n</SEC-DOCUMENT>\n"), time.Now())
		Expect(err).To(MatchError(edgar.ErrNoReportPeriod))
	})
})

var _ = Describe("Aggregate", func() {
	var holdings []*data.Holding

	BeforeEach(func() {
		content, err := os.ReadFile("testdata/submission_xml.txt")
		Expect(err).To(BeNil())

		holdings, err = edgar.ParseSubmission(content, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
		Expect(err).To(BeNil())
	})

	It("groups by cusip and drops duplicate lines", func() {
		positions := edgar.Aggregate(holdings, 0)
		Expect(positions).To(HaveLen(3))

		Expect(positions[0].Cusip).To(Equal("037833100"))
		Expect(positions[0].Value).To(Equal(int64(1500)))
		Expect(positions[1].Cusip).To(Equal("060505104"))
		Expect(positions[1].Value).To(Equal(int64(800)))
		Expect(positions[2].Security).To(Equal("SPDR S&P 500 ETF TR Put"))
	})

	It("weights the top positions", func() {
		positions := edgar.Aggregate(holdings, 2)
		Expect(positions).To(HaveLen(2))

		Expect(positions[0].Weight.Equal(decimal.NewFromInt(1500).Div(decimal.NewFromInt(2300)))).To(BeTrue())
		Expect(positions[1].Weight.Equal(decimal.NewFromInt(800).Div(decimal.NewFromInt(2300)))).To(BeTrue())

		sum := positions[0].Weight.Add(positions[1].Weight)
		Expect(sum.Round(6).Equal(decimal.NewFromInt(1))).To(BeTrue())
	})

	It("handles an empty report", func() {
		Expect(edgar.Aggregate(nil, 10)).To(BeEmpty())
	})
})
