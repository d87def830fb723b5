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
package fetch

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStatus       = errors.New("status code is invalid")
	ErrBrowserStart = errors.New("could not start browser")
)

// Fetcher retrieves the raw body of a page
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Close() error
}

type Options struct {
	UserAgent         string
	Timeout           time.Duration
	Retries           int
	RetryWait         time.Duration
	RequestsPerSecond float64

	// Browser selects a headless chromium instead of a plain HTTP client
	Browser  bool
	Headless bool
}

// DefaultOptions returns a polite fetcher: one request per second, three
// retries and a headless browser when one is requested
func DefaultOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		Retries:           3,
		RetryWait:         time.Second,
		RequestsPerSecond: 1,
		Headless:          true,
	}
}

func New(opts Options) (Fetcher, error) {
	if opts.Browser {
		return NewBrowser(opts)
	}

	return NewHTTP(opts), nil
}
