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
package library

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DataTypeCount is the number of records stored for one data type across
// every subscription table
type DataTypeCount struct {
	DataType   string
	NumTables  int
	NumRecords int64
}

// Summary returns a description of the library in markdown
func (myLibrary *Library) Summary(ctx context.Context) (string, error) {
	subscriptions, err := myLibrary.Subscriptions(ctx)
	if err != nil {
		return "", err
	}

	counts, err := myLibrary.countRecords(ctx, subscriptions)
	if err != nil {
		return "", err
	}

	return renderSummary(myLibrary, subscriptions, counts, time.Now()), nil
}

// countRecords counts the rows of every subscription table grouped by data type
func (myLibrary *Library) countRecords(ctx context.Context, subscriptions []*Subscription) ([]*DataTypeCount, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	byType := make(map[string]*DataTypeCount)
	for _, subscription := range subscriptions {
		for dataType, tbl := range subscription.DataTablesMap {
			var numRecords int64
			if err := conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", tbl)).Scan(&numRecords); err != nil {
				return nil, fmt.Errorf("count records in %s: %w", tbl, err)
			}

			count, ok := byType[dataType]
			if !ok {
				count = &DataTypeCount{DataType: dataType}
				byType[dataType] = count
			}
			count.NumTables++
			count.NumRecords += numRecords
		}
	}

	counts := make([]*DataTypeCount, 0, len(byType))
	for _, dataType := range slices.Sorted(maps.Keys(byType)) {
		counts = append(counts, byType[dataType])
	}
	return counts, nil
}

func renderSummary(myLibrary *Library, subscriptions []*Subscription, counts []*DataTypeCount, now time.Time) string {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	fmt.Fprintf(&builder, "# %s\n\n", myLibrary.Name)
	fmt.Fprintf(&builder, "Database: %s\n\n", redactURL(myLibrary.DBUrl))

	var lastUpdated time.Time
	numActive := 0
	for _, subscription := range subscriptions {
		if subscription.Active {
			numActive++
		}
		if subscription.LastRun.After(lastUpdated) {
			lastUpdated = subscription.LastRun
		}
	}

	builder.WriteString(p.Sprintf("  * Subscriptions: %d active, %d paused\n", numActive, len(subscriptions)-numActive))
	fmt.Fprintf(&builder, "  * Last Updated: %s\n\n", describeRun(lastUpdated, now))

	builder.WriteString("## Records\n\n| Data Type | Tables | Records |\n|---|---:|---:|\n")
	for _, count := range counts {
		builder.WriteString(p.Sprintf("| %s | %d | %d |\n", count.DataType, count.NumTables, count.NumRecords))
	}

	builder.WriteString("\n## Subscriptions\n\n")
	builder.WriteString("| ID | Provider | Dataset | Schedule | Last Run | Status | Last Import | Observations |\n")
	builder.WriteString("|---|---|---|---|---|---|---:|---|\n")

	sorted := slices.Clone(subscriptions)
	slices.SortFunc(sorted, func(a, b *Subscription) int {
		return strings.Compare(a.Provider+a.Dataset+a.ID.String(), b.Provider+b.Dataset+b.ID.String())
	})

	for _, subscription := range sorted {
		status := subscription.LastRunStatus
		if status == "" {
			status = "pending"
		}
		if !subscription.Active {
			status += " (paused)"
		}

		builder.WriteString(p.Sprintf("| %s | %s | %s | `%s` | %s | %s | %d | %s |\n", subscription.ID.String()[:6],
			subscription.Provider, subscription.Dataset, subscription.Schedule, describeRun(subscription.LastRun, now),
			status, subscription.NumRecordsLastImport, observationRange(subscription)))
	}

	return builder.String()
}

func describeRun(lastRun, now time.Time) string {
	// unset timestamps are read back as year 1
	if lastRun.Year() <= 1 {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", timeago.English.FormatReference(lastRun, now), lastRun.Local().Format("2006-01-02"))
}

func observationRange(subscription *Subscription) string {
	if subscription.FirstObsDate.Year() <= 1 {
		return "none"
	}
	return fmt.Sprintf("%s to %s", subscription.FirstObsDate.Format("2006-01-02"), subscription.LastObsDate.Format("2006-01-02"))
}

// redactURL hides the password of a database connection string. Both URL
// and key=value connection strings are understood.
func redactURL(dbURL string) string {
	if parsed, err := url.Parse(dbURL); err == nil && parsed.Scheme != "" {
		return parsed.Redacted()
	}

	fields := strings.Fields(dbURL)
	for idx, field := range fields {
		if strings.HasPrefix(field, "password=") {
			fields[idx] = "password=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}
