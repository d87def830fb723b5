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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFiler = errors.New("filer must be formatted as name:cik:top")

// Filer is an institutional manager whose 13F reports are followed
type Filer struct {
	Name string
	CIK  string
	TopN int
}

func (filer Filer) String() string {
	return fmt.Sprintf("%s:%s:%d", filer.Name, filer.CIK, filer.TopN)
}

// DefaultFilers is the list of managers followed when none are configured
var DefaultFilers = []Filer{
	{Name: "Greenblatt", CIK: "0001510387", TopN: 10},
	{Name: "Munger", CIK: "0000783412", TopN: 5},
	{Name: "Simpson", CIK: "0001534380", TopN: 10},
	{Name: "Yacktman", CIK: "0000905567", TopN: 10},
	{Name: "Ackman", CIK: "0001336528", TopN: 3},
	{Name: "Buffett", CIK: "0001067983", TopN: 12},
	{Name: "Akre", CIK: "0001112520", TopN: 10},
}

// ParseFilers parses entries of the form name:cik:top. The top component
// is optional and defaults to 10.
func ParseFilers(entries []string) ([]Filer, error) {
	filers := make([]Filer, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFiler, entry)
		}

		filer := Filer{Name: parts[0], CIK: parts[1], TopN: 10}
		if len(parts) == 3 {
			top, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidFiler, entry)
			}
			filer.TopN = top
		}

		filers = append(filers, filer)
	}

	return filers, nil
}

// FilerByCIK looks up cik in filers
func FilerByCIK(filers []Filer, cik string) (Filer, bool) {
	for _, filer := range filers {
		if filer.CIK == cik {
			return filer, true
		}
	}
	return Filer{}, false
}
