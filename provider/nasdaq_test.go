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
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/data"
)

var _ = Describe("Nasdaq", func() {
	day := time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC)

	Describe("ParseEarningsCalendar", func() {
		var (
			records []*data.Earnings
			err     error
		)

		BeforeEach(func() {
			content, readErr := os.ReadFile("testdata/nasdaq_earnings.html")
			Expect(readErr).To(BeNil())
			records, err = ParseEarningsCalendar(context.Background(), content, day)
		})

		It("stops at the no data row", func() {
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(3))
			for _, record := range records {
				Expect(record.Ticker).NotTo(Equal("MSFT"))
				Expect(record.EventDate).To(Equal(day))
				Expect(data.Validate(record)).To(Succeed())
			}
		})

		It("maps the columns of a complete row", func() {
			apple := records[0]
			Expect(apple.Ticker).To(Equal("AAPL"))
			Expect(apple.Quarter).To(Equal("Dec 2017"))
			Expect(*apple.Forecast).To(BeNumerically("~", 3.82))
			Expect(apple.Estimates).To(Equal(int32(15)))
			Expect(*apple.Actual).To(BeNumerically("~", 3.89))
			Expect(*apple.Surprise).To(BeNumerically("~", 1.83))
		})

		It("normalizes missing and negative values", func() {
			exxon := records[1]
			Expect(exxon.Ticker).To(Equal("XOM"))
			Expect(*exxon.Forecast).To(BeNumerically("~", -0.12))
			Expect(exxon.Estimates).To(Equal(int32(1204)))
			Expect(exxon.Actual).To(BeNil())
			Expect(*exxon.Surprise).To(BeNumerically("==", 0))
		})

		It("trims leading junk up to the ticker", func() {
			lpl := records[2]
			Expect(lpl.Ticker).To(Equal("LPLA"))
			Expect(lpl.Quarter).To(Equal("Dec 2017"))
			Expect(*lpl.Forecast).To(BeNumerically("~", 0.83))
			Expect(lpl.Estimates).To(Equal(int32(8)))
			Expect(*lpl.Actual).To(BeNumerically("~", 0.78))
			Expect(*lpl.Surprise).To(BeNumerically("~", -5.26))
		})

		It("returns nothing for a day without earnings", func() {
			content, readErr := os.ReadFile("testdata/nasdaq_empty.html")
			Expect(readErr).To(BeNil())
			empty, err := ParseEarningsCalendar(context.Background(), content, day)
			Expect(err).To(BeNil())
			Expect(empty).To(BeEmpty())
		})

		It("ends the page at a row with an unknown cell layout", func() {
			content, readErr := os.ReadFile("testdata/nasdaq_feb2018.html")
			Expect(readErr).To(BeNil())
			partial, err := ParseEarningsCalendar(context.Background(), content, day)
			Expect(err).To(BeNil())
			Expect(partial).To(HaveLen(1))
			Expect(partial[0].Ticker).To(Equal("GE"))
			Expect(*partial[0].Surprise).To(BeNumerically("~", -41.3))
		})

		It("ignores pages without a calendar", func() {
			empty, err := ParseEarningsCalendar(context.Background(), []byte("<html><body><p>maintenance</p></body></html>"), day)
			Expect(err).To(BeNil())
			Expect(empty).To(BeEmpty())
		})
	})

	DescribeTable("parseMoney",
		func(input string, expected interface{}) {
			result := parseMoney(input)
			if expected == nil {
				Expect(result).To(BeNil())
				return
			}
			Expect(result).NotTo(BeNil())
			Expect(*result).To(BeNumerically("~", expected.(float64)))
		},
		Entry("dollars", "$1.23", 1.23),
		Entry("negative in parenthesis", "($0.12)", -0.12),
		Entry("thousands separator", "$1,234.50", 1234.5),
		Entry("percent", "12.5%", 12.5),
		Entry("met", "Met", 0.0),
		Entry("not available", "n/a", nil),
		Entry("blank", "  ", nil),
		Entry("garbage", "pending", nil),
	)

	Describe("earningsStartDate", func() {
		configured := time.Date(2013, 1, 3, 0, 0, 0, 0, time.UTC)

		It("uses the configured date when nothing is stored", func() {
			Expect(earningsStartDate(time.Time{}, configured)).To(Equal(configured))
		})

		It("resumes the day after the last stored event", func() {
			last := time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC)
			Expect(earningsStartDate(last, configured)).To(Equal(time.Date(2018, 2, 2, 0, 0, 0, 0, time.UTC)))
		})
	})

	It("formats the calendar url with the month abbreviation", func() {
		Expect(nasdaqDayURL("http://www.nasdaq.com/earnings/earnings-calendar.aspx", time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC))).
			To(Equal("http://www.nasdaq.com/earnings/earnings-calendar.aspx?date=2018-Feb-1"))
	})
})
