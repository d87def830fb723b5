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
package figi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const (
	maxJobsPerRequest = 100
)

var (
	MappingURL = "https://api.openfigi.com/v3/mapping"

	ErrStatus = errors.New("openfigi returned an invalid status code")
)

type MappingResponse struct {
	Data    []*OpenFigiAsset `json:"data"`
	Warning string           `json:"warning"`
}

type OpenFigiAsset struct {
	Figi                string `json:"figi"`
	SecurityType        string `json:"securityType"`
	MarketSector        string `json:"marketSector"`
	Ticker              string `json:"ticker"`
	Name                string `json:"name"`
	ExchangeCode        string `json:"exchCode"`
	ShareClassFIGI      string `json:"shareClassFIGI"`
	CompositeFIGI       string `json:"compositeFIGI"`
	SecurityType2       string `json:"securityType2"`
	SecurityDescription string `json:"securityDescription"`
}

type OpenFigiQuery struct {
	IdType       string `json:"idType"`
	IdValue      string `json:"idValue"`
	ExchangeCode string `json:"exchCode,omitempty"`
}

func rateLimit() *rate.Limiter {
	dur := (time.Second * 6) / 25
	openFigiRate := rate.Every(dur)
	return rate.NewLimiter(openFigiRate, 10)
}

func mapFigis(ctx context.Context, query []*OpenFigiQuery) ([]*MappingResponse, error) {
	if len(query) > maxJobsPerRequest {
		return nil, fmt.Errorf("too many jobs in openfigi request: %d", len(query))
	}

	mappingResponse := make([]*MappingResponse, 0, len(query))
	client := resty.New()
	req := client.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(&mappingResponse)

	if apiKey := viper.GetString("openfigi.apikey"); apiKey != "" {
		req.SetHeader("X-OPENFIGI-APIKEY", apiKey)
	}

	resp, err := req.Post(MappingURL)

	log.Debug().Str("URL", MappingURL).Int("NumJobs", len(query)).Msg("map identifiers to FIGIs")

	if err != nil {
		log.Error().Err(err).Msg("OpenFigi api called errored out")
		return nil, err
	}

	if resp.StatusCode() >= 400 {
		log.Error().Int("StatusCode", resp.StatusCode()).Str("Body", string(resp.Body())).Msg("openfigi api call returned invalid status code")
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return mappingResponse, nil
}

// LookupCusips maps each CUSIP to the US listing OpenFIGI knows for it.
// Identifiers OpenFIGI cannot map are absent from the result.
func LookupCusips(ctx context.Context, cusips []string) (map[string]*OpenFigiAsset, error) {
	rateLimiter := rateLimit()
	result := make(map[string]*OpenFigiAsset, len(cusips))

	for start := 0; start < len(cusips); start += maxJobsPerRequest {
		end := min(start+maxJobsPerRequest, len(cusips))
		batch := cusips[start:end]

		query := make([]*OpenFigiQuery, len(batch))
		for idx, cusip := range batch {
			query[idx] = &OpenFigiQuery{
				IdType:       "ID_CUSIP",
				IdValue:      cusip,
				ExchangeCode: "US",
			}
		}

		if err := rateLimiter.Wait(ctx); err != nil {
			return result, err
		}

		mappingResponse, err := mapFigis(ctx, query)
		if err != nil {
			return result, err
		}

		// responses are returned in the same order as the jobs
		for idx, resp := range mappingResponse {
			if idx >= len(batch) || len(resp.Data) == 0 {
				continue
			}
			result[batch[idx]] = resp.Data[0]
		}
	}

	return result, nil
}
