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
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type HTTP struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewHTTP(opts Options) *HTTP {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		AddRetryCondition(retryable)

	if opts.RetryWait > 0 {
		client.SetRetryWaitTime(opts.RetryWait).
			SetRetryMaxWaitTime(10 * opts.RetryWait)
	}

	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &HTTP{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (fetcher *HTTP) Get(ctx context.Context, url string) ([]byte, error) {
	if err := fetcher.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := fetcher.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		log.Warn().Str("Url", url).Int("StatusCode", resp.StatusCode()).Msg("page request failed")
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return resp.Body(), nil
}

// retryable repeats requests that failed in transport, were rate limited or
// hit a server error. Cancelled requests are not repeated.
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	if resp == nil {
		return false
	}

	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
}

func (fetcher *HTTP) Close() error {
	return nil
}
