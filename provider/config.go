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
package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var ErrInvalidConfig = errors.New("invalid subscription config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// configChecker is implemented by configs with rules the struct tags
// cannot express
type configChecker interface {
	Check() error
}

// DecodeConfig fills cfg, a pointer to a config struct, from the string map
// stored with a subscription. Defaults are applied first so that blank
// values keep the default.
func DecodeConfig(raw map[string]string, cfg interface{}) error {
	if err := defaults.Set(cfg); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		if strings.TrimSpace(val) != "" {
			values[key] = val
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		TagName:          "config",
		Result:           cfg,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(values); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describeValidation(err))
	}

	if checker, ok := cfg.(configChecker); ok {
		if err := checker.Check(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid url", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", field, fe.Param()))
		case "gt", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", field, fe.Tag()))
		}
	}

	return strings.Join(msgs, "; ")
}

// cleanList trims every entry and drops blanks
func cleanList(entries []string) []string {
	cleaned := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry = strings.TrimSpace(entry); entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return cleaned
}
