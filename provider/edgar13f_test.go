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
)

var _ = Describe("Edgar 13F", func() {
	lastQuarter := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	DescribeTable("skipFiling",
		func(filed time.Time, skipStale bool, expected bool) {
			latest := &edgar.Filing{Form: edgar.Form13F, FilingDate: filed}
			Expect(skipFiling(latest, lastQuarter, skipStale)).To(Equal(expected))
		},
		Entry("filed after the quarter end", time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), true, false),
		Entry("filed on the quarter end", lastQuarter, true, false),
		Entry("filed before the quarter end", time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), true, true),
		Entry("stale filings allowed", time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), false, false),
	)

	Describe("reportStored", func() {
		reportDate := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

		It("imports reports that were never saved", func() {
			Expect(reportStored(map[string]int{}, reportDate, 40)).To(BeFalse())
			Expect(reportStored(map[string]int{"2023-09-30": 38}, reportDate, 40)).To(BeFalse())
		})

		It("skips a report with every line saved", func() {
			Expect(reportStored(map[string]int{"2023-12-31": 40}, reportDate, 40)).To(BeTrue())
		})

		It("imports a partially saved report again", func() {
			Expect(reportStored(map[string]int{"2023-12-31": 12}, reportDate, 40)).To(BeFalse())
		})
	})
})
