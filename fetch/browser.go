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
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var blockedHosts = []string{
	"google.com",
	"googletagservices.com",
	"googlesyndication.com",
	"facebook.com",
	"moatpixel.com",
	"moatads.com",
	"adsystem.com",
	"connatix.com",
	"prebid",
	"sodar",
	"auction",
	"rubiconproject.com",
	"pubmatic.com",
	"adnxs.com",
	"lijit.com",
	"3lift.com",
	"doubleclick.net",
	"bidswitch.net",
	"casalemedia.com",
	"sitescout.com",
	"eyeota.net",
}

// Browser loads pages in a headless chromium with the stealth script
// installed. Pages are loaded one at a time.
type Browser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	limiter *rate.Limiter
}

func NewBrowser(opts Options) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	log.Info().Bool("Headless", opts.Headless).Str("ExecutablePath", pw.Chromium.ExecutablePath()).Str("BrowserVersion", browser.Version()).Msg("starting playwright")

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = buildUserAgent(browser)
	}
	log.Info().Str("UserAgent", userAgent).Msg("using user-agent")

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	page, err := stealthPage(browserContext)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	blockTrackers(page)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: browserContext,
		page:    page,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (fetcher *Browser) Get(ctx context.Context, url string) ([]byte, error) {
	if err := fetcher.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()

	resp, err := fetcher.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, err
	}

	if resp.Status() >= 400 {
		log.Warn().Str("Url", url).Int("StatusCode", resp.Status()).Msg("page request failed")
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.Status())
	}

	headers, err := resp.AllHeaders()
	if err == nil && !strings.Contains(headers["content-type"], "html") {
		return resp.Body()
	}

	content, err := fetcher.page.Content()
	if err != nil {
		return nil, err
	}

	return []byte(content), nil
}

func (fetcher *Browser) Close() error {
	log.Info().Msg("closing browser")
	if err := fetcher.browser.Close(); err != nil {
		log.Error().Err(err).Msg("error encountered when closing browser")
	}

	log.Info().Msg("stopping playwright")
	return fetcher.pw.Stop()
}

// stealthPage creates a new page with stealth js loaded to prevent bot detection
func stealthPage(browserContext playwright.BrowserContext) (playwright.Page, error) {
	page, err := browserContext.NewPage()
	if err != nil {
		return nil, err
	}

	if err = page.AddInitScript(playwright.Script{
		Content: playwright.String(stealth.JS),
	}); err != nil {
		log.Error().Err(err).Msg("could not load stealth mode")
	}

	return page, nil
}

// buildUserAgent asks the browser for its user agent and removes the headless identifier
func buildUserAgent(browser playwright.Browser) string {
	browserContext, err := browser.NewContext()
	if err != nil {
		log.Error().Err(err).Msg("could not create context for building user agent")
		return ""
	}
	defer browserContext.Close()

	page, err := browserContext.NewPage()
	if err != nil {
		log.Error().Err(err).Msg("could not create page buildUserAgent")
		return ""
	}

	userAgent, err := page.Evaluate("() => navigator.userAgent")
	if err != nil {
		log.Error().Err(err).Msg("could not read navigator.userAgent")
		return ""
	}

	ua, _ := userAgent.(string)
	return strings.Replace(ua, "Headless", "", -1)
}

func blockTrackers(page playwright.Page) {
	err := page.Route("**/*", func(route playwright.Route) {
		url := route.Request().URL()
		for _, host := range blockedHosts {
			if strings.Contains(url, host) {
				if err := route.Abort("failed"); err != nil {
					log.Error().Err(err).Msg("failed blocking route")
				}
				return
			}
		}

		if err := route.Continue(); err != nil {
			log.Error().Err(err).Msg("failed continueing route")
		}
	})

	if err != nil {
		log.Error().Err(err).Msg("page route errored")
	}
}
