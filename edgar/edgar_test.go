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
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/edgar"
	"github.com/penny-vault/pvscrape/fetch"
)

func serveFile(w http.ResponseWriter, fn string) {
	content, err := os.ReadFile(fn)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(content)
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		client   *edgar.Client
		requests []string
	)

	BeforeEach(func() {
		requests = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests = append(requests, r.URL.String())
			switch {
			case r.URL.Path == "/cgi-bin/browse-edgar" && r.URL.Query().Get("type") == edgar.Form13F:
				serveFile(w, "testdata/browse_13f.html")
			case r.URL.Path == "/cgi-bin/browse-edgar":
				serveFile(w, "testdata/browse_10q.html")
			case strings.HasSuffix(r.URL.Path, "-index.htm"):
				serveFile(w, "testdata/documents.html")
			case strings.HasSuffix(r.URL.Path, ".txt"):
				serveFile(w, "testdata/submission_xml.txt")
			case r.URL.Path == "/files/company_tickers.json":
				serveFile(w, "testdata/company_tickers.json")
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		client = edgar.NewClient(fetch.NewHTTP(fetch.Options{}))
		client.BaseURL = server.URL
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Filings", func() {
		It("lists 13F filings without amendments", func() {
			filings, err := client.Filings(context.Background(), "0001067983", edgar.Form13F, time.Time{})
			Expect(err).To(BeNil())
			Expect(filings).To(HaveLen(2))
			Expect(filings[0].Form).To(Equal("13F-HR"))
			Expect(filings[0].FilingDate).To(Equal(time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)))
			Expect(filings[0].DocumentsURL).To(Equal(server.URL + "/Archives/edgar/data/1067983/000095012324002518/0000950123-24-002518-index.htm"))
			Expect(filings[1].FilingDate).To(Equal(time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)))
		})

		It("requests the full history for 13F filings", func() {
			_, err := client.Filings(context.Background(), "0001067983", edgar.Form13F, time.Time{})
			Expect(err).To(BeNil())
			Expect(requests).To(HaveLen(1))
			Expect(requests[0]).To(ContainSubstring("hidefilings=0"))
			Expect(requests[0]).To(ContainSubstring("owner=exclude"))
		})

		It("matches the whole 10- family", func() {
			filings, err := client.Filings(context.Background(), "A", edgar.FormQuarterlyOrAnnual, time.Date(2000, 4, 30, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(filings).To(HaveLen(2))
			Expect(filings[0].Form).To(Equal("10-Q"))
			Expect(filings[0].DocumentsURL).To(HaveSuffix("0001090872-00-000019-index.htm"))
			Expect(filings[1].Form).To(Equal("10-K405"))
			Expect(requests[0]).To(ContainSubstring("dateb=20000430"))
			Expect(requests[0]).To(ContainSubstring("count=100"))
		})
	})

	Describe("FilingDate", func() {
		It("returns the most recent filing date", func() {
			date, err := client.FilingDate(context.Background(), "A", edgar.FormQuarterlyOrAnnual, time.Date(2000, 4, 30, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(date).To(Equal(time.Date(2000, 3, 16, 0, 0, 0, 0, time.UTC)))
		})

		It("fails when nothing matches", func() {
			_, err := client.FilingDate(context.Background(), "A", "S-1", time.Time{})
			Expect(err).To(MatchError(edgar.ErrNoFilings))
		})
	})

	Describe("Holdings", func() {
		It("follows the documents page to the submission text", func() {
			filings, err := client.Filings(context.Background(), "0001067983", edgar.Form13F, time.Time{})
			Expect(err).To(BeNil())

			holdings, err := client.Holdings(context.Background(), filings[0])
			Expect(err).To(BeNil())
			Expect(holdings).To(HaveLen(5))
			Expect(holdings[0].ReportDate).To(Equal(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
			Expect(holdings[0].FilingDate).To(Equal(filings[0].FilingDate))
			Expect(holdings[0].Value).To(Equal(int64(1000)))
		})
	})

	Describe("CIK", func() {
		It("resolves known tickers", func() {
			Expect(client.CIK(context.Background(), "aapl")).To(Equal("0000320193"))
			Expect(client.CIK(context.Background(), "BRK-B")).To(Equal("0001067983"))
		})

		It("falls back to the ticker", func() {
			Expect(client.CIK(context.Background(), "zzzz")).To(Equal("ZZZZ"))
		})

		It("downloads the ticker map once", func() {
			client.CIK(context.Background(), "AAPL")
			client.CIK(context.Background(), "A")
			Expect(requests).To(HaveLen(1))
		})
	})
})

var _ = Describe("LastEndedQuarter", func() {
	DescribeTable("quarter boundaries",
		func(now, expected time.Time) {
			Expect(edgar.LastEndedQuarter(now)).To(Equal(expected))
		},
		Entry("february", time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
		Entry("first day of april", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
		Entry("august", time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC), time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)),
		Entry("december", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2023, 9, 30, 0, 0, 0, 0, time.UTC)),
	)
})

var _ = Describe("ParseFilers", func() {
	It("parses name, cik and top", func() {
		filers, err := edgar.ParseFilers([]string{"Buffett:0001067983:12", "Akre:0001112520"})
		Expect(err).To(BeNil())
		Expect(filers).To(Equal([]edgar.Filer{
			{Name: "Buffett", CIK: "0001067983", TopN: 12},
			{Name: "Akre", CIK: "0001112520", TopN: 10},
		}))
	})

	It("rejects malformed entries", func() {
		_, err := edgar.ParseFilers([]string{"Buffett"})
		Expect(err).To(MatchError(edgar.ErrInvalidFiler))

		_, err = edgar.ParseFilers([]string{"Buffett:0001067983:many"})
		Expect(err).To(MatchError(edgar.ErrInvalidFiler))
	})

	It("includes the default managers", func() {
		filer, ok := edgar.FilerByCIK(edgar.DefaultFilers, "0000783412")
		Expect(ok).To(BeTrue())
		Expect(filer.Name).To(Equal("Munger"))
		Expect(filer.TopN).To(Equal(5))
		Expect(edgar.DefaultFilers).To(HaveLen(7))
	})
})
