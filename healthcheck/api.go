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
package healthcheck

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrStatus = errors.New("status code is invalid")
)

var (
	APIURL  = "https://healthchecks.io/api/v3/checks"
	PingURL = "https://hc-ping.com"
)

type createReq struct {
	APIKey      string `json:"api_key"`
	Name        string `json:"name"`
	Description string `json:"desc,omitempty"`
	Grace       int    `json:"grace"`
	Schedule    string `json:"schedule"`
	Slug        string `json:"slug"`
	Tags        string `json:"tags"`
	Timezone    string `json:"tz"`
}

type createResp struct {
	PingURL string `json:"ping_url"`
}

// Enabled reports whether a healthchecks.io api key is configured
func Enabled() bool {
	return viper.GetString("healthchecks.apikey") != ""
}

// Create a new healthchecks.io check and return the id
func Create(name string, slug string, tags []string, schedule string) (string, error) {
	command := createReq{
		APIKey:   viper.GetString("healthchecks.apikey"),
		Name:     name,
		Slug:     slug,
		Tags:     strings.Join(tags, " "),
		Grace:    3600,
		Schedule: schedule,
		Timezone: "America/New_York",
	}

	result := createResp{}

	client := resty.New()
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(command).
		SetResult(&result).
		Post(APIURL + "/")

	if err != nil {
		return "", err
	}

	if resp.StatusCode() > http.StatusCreated {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	checkID := strings.Split(result.PingURL, "/")
	healthCheckID := checkID[len(checkID)-1]

	return healthCheckID, nil
}

func manage(method, url string) error {
	client := resty.New()
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", viper.GetString("healthchecks.apikey")).
		Execute(method, url)

	if err != nil {
		return err
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}

// Delete a health check
func Delete(id string) error {
	return manage(resty.MethodDelete, fmt.Sprintf("%s/%s", APIURL, id))
}

// Pause monitoring of a health check
func Pause(id string) error {
	return manage(resty.MethodPost, fmt.Sprintf("%s/%s/pause", APIURL, id))
}

// Resume monitoring of a health check
func Resume(id string) error {
	return manage(resty.MethodPost, fmt.Sprintf("%s/%s/resume", APIURL, id))
}

// Start signals that a monitored run has begun
func Start(id string) error {
	return ping(fmt.Sprintf("%s/%s/start", PingURL, id))
}

// Ping reports the outcome of a monitored run
func Ping(id string, failed bool) error {
	url := fmt.Sprintf("%s/%s", PingURL, id)
	if failed {
		url += "/fail"
	}
	return ping(url)
}

func ping(url string) error {
	resp, err := resty.New().SetRetryCount(2).R().Post(url)
	if err != nil {
		return err
	}

	if resp.StatusCode() != http.StatusOK {
		log.Warn().Str("Url", url).Int("StatusCode", resp.StatusCode()).Msg("healthcheck ping rejected")
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}
