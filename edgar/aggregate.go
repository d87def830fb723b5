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
package edgar

import (
	"sort"

	"github.com/penny-vault/pvscrape/data"
	"github.com/shopspring/decimal"
)

// Position is the combined value of every holding that shares a CUSIP
type Position struct {
	Security string          `json:"security"`
	Cusip    string          `json:"cusip"`
	Ticker   string          `json:"ticker,omitempty"`
	Value    int64           `json:"value"`
	Weight   decimal.Decimal `json:"weight"`
}

type holdingKey struct {
	security        string
	cusip           string
	title           string
	quantity        int64
	value           int64
	optionType      string
	securityType    string
	votingAuthority string
}

// Aggregate combines holdings into per CUSIP positions and keeps the topN
// largest. Weights are relative to the value of the kept positions. A topN
// less than 1 keeps every position.
func Aggregate(holdings []*data.Holding, topN int) []*Position {
	seen := make(map[holdingKey]bool, len(holdings))
	byCusip := make(map[string]*Position)
	positions := make([]*Position, 0, len(holdings))

	for _, holding := range holdings {
		key := holdingKey{
			security:        holding.Security,
			cusip:           holding.Cusip,
			title:           holding.Title,
			quantity:        holding.Quantity,
			value:           holding.Value,
			optionType:      holding.OptionType,
			securityType:    holding.SecurityType,
			votingAuthority: holding.VotingAuthority,
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		position, ok := byCusip[holding.Cusip]
		if !ok {
			position = &Position{
				Security: holding.Security,
				Cusip:    holding.Cusip,
			}
			if holding.Ticker != nil {
				position.Ticker = *holding.Ticker
			}
			byCusip[holding.Cusip] = position
			positions = append(positions, position)
		}
		position.Value += holding.Value
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Value > positions[j].Value
	})

	if topN > 0 && topN < len(positions) {
		positions = positions[:topN]
	}

	var total int64
	for _, position := range positions {
		total += position.Value
	}

	for _, position := range positions {
		if total == 0 {
			position.Weight = decimal.Zero
			continue
		}
		position.Weight = decimal.NewFromInt(position.Value).Div(decimal.NewFromInt(total))
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Weight.GreaterThan(positions[j].Weight)
	})

	return positions
}
