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
package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvscrape/fetch"
)

var _ = Describe("HTTP", func() {
	var (
		server    *httptest.Server
		userAgent string
		fetcher   fetch.Fetcher
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.Header.Get("User-Agent")
			switch r.URL.Path {
			case "/ok":
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html><body>hello</body></html>"))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		var err error
		fetcher, err = fetch.New(fetch.Options{
			UserAgent:         "pvscrape test@example.com",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 100,
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(fetcher.Close()).To(Succeed())
		server.Close()
	})

	It("returns the body of the page", func() {
		body, err := fetcher.Get(context.Background(), server.URL+"/ok")
		Expect(err).To(BeNil())
		Expect(string(body)).To(ContainSubstring("hello"))
	})

	It("sends the configured user agent", func() {
		_, err := fetcher.Get(context.Background(), server.URL+"/ok")
		Expect(err).To(BeNil())
		Expect(userAgent).To(Equal("pvscrape test@example.com"))
	})

	It("wraps error status codes", func() {
		_, err := fetcher.Get(context.Background(), server.URL+"/missing")
		Expect(err).To(MatchError(fetch.ErrStatus))
		Expect(err.Error()).To(ContainSubstring("404"))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fetcher.Get(ctx, server.URL+"/ok")
		Expect(err).ToNot(BeNil())
	})
})

var _ = Describe("HTTP retries", func() {
	var (
		server   *httptest.Server
		attempts atomic.Int32
		failures int32
		status   int
		fetcher  fetch.Fetcher
	)

	BeforeEach(func() {
		attempts.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) <= failures {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte("<html><body>recovered</body></html>"))
		}))

		var err error
		fetcher, err = fetch.New(fetch.Options{
			Timeout:           5 * time.Second,
			Retries:           3,
			RetryWait:         10 * time.Millisecond,
			RequestsPerSecond: 100,
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(fetcher.Close()).To(Succeed())
		server.Close()
	})

	DescribeTable("repeats transient failures",
		func(code int) {
			failures = 1
			status = code

			body, err := fetcher.Get(context.Background(), server.URL)
			Expect(err).To(BeNil())
			Expect(string(body)).To(ContainSubstring("recovered"))
			Expect(attempts.Load()).To(Equal(int32(2)))
		},
		Entry("service unavailable", http.StatusServiceUnavailable),
		Entry("too many requests", http.StatusTooManyRequests),
		Entry("internal server error", http.StatusInternalServerError),
	)

	It("gives up after the configured retries", func() {
		failures = 10
		status = http.StatusBadGateway

		_, err := fetcher.Get(context.Background(), server.URL)
		Expect(err).To(MatchError(fetch.ErrStatus))
		Expect(err.Error()).To(ContainSubstring("502"))
		Expect(attempts.Load()).To(Equal(int32(4)))
	})

	It("does not repeat client errors", func() {
		failures = 10
		status = http.StatusNotFound

		_, err := fetcher.Get(context.Background(), server.URL)
		Expect(err).To(MatchError(fetch.ErrStatus))
		Expect(attempts.Load()).To(Equal(int32(1)))
	})
})
