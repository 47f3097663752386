// Copyright 2024-2025 The appsink Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package etl

import (
	"strconv"
	"strings"

	"github.com/appsink/appsink/internal/similartext"
)

// StepKind enumerates the mapping-type directives a contract may attach to a
// field mapping.
type StepKind int

const (
	// StepEnum translates the value through a named enum mapping.
	StepEnum StepKind = iota
	// StepCharToBit turns Y/N style flags into bit values.
	StepCharToBit
	// StepNumbersOnly strips every non-digit character.
	StepNumbersOnly
	// StepExtractNumeric extracts the first numeric token, keeping sign
	// and decimal point.
	StepExtractNumeric
	// StepCalculatedField evaluates the mapping's expression.
	StepCalculatedField
	// StepLastValidPrimaryContact sources the value from the deduplicated
	// primary contact.
	StepLastValidPrimaryContact
	// StepLastValidSecondaryContact sources the value from the
	// deduplicated secondary contact.
	StepLastValidSecondaryContact
	// StepCurrAddressOnly restricts the source to current-type addresses.
	StepCurrAddressOnly
	// StepDefaultGetUTCDateIfNull substitutes the current UTC timestamp
	// when the value is empty.
	StepDefaultGetUTCDateIfNull
	// StepExtractDate converts the value through the tolerant date parser.
	StepExtractDate
	// StepIdentityInsert marks the table for explicit identity values. It
	// is consumed at contract load and is a no-op during evaluation.
	StepIdentityInsert

	// Row-creating kinds follow. They append rows to the mapping's table
	// instead of populating a single column.

	// StepAddScore emits {app_id, score_identifier, score} rows.
	StepAddScore
	// StepAddIndicator emits {app_id, indicator, value} rows for truthy
	// sources.
	StepAddIndicator
	// StepAddHistory emits {app_id, name, source, value} rows.
	StepAddHistory
	// StepAddReportLookup emits {app_id, name, value, source_report_key}
	// rows.
	StepAddReportLookup
	// StepPolicyExceptions emits policy-exception rows keyed by an enum
	// bucket; the parameterless variant supplies shared notes.
	StepPolicyExceptions
	// StepWarrantyField contributes one field of a per-bucket warranty
	// row.
	StepWarrantyField
	// StepAddCollateral contributes one field of a per-slot collateral
	// row, slots 1 through 4.
	StepAddCollateral
)

var stepNames = map[StepKind]string{
	StepEnum:                      "enum",
	StepCharToBit:                 "char_to_bit",
	StepNumbersOnly:               "numbers_only",
	StepExtractNumeric:            "extract_numeric",
	StepCalculatedField:           "calculated_field",
	StepLastValidPrimaryContact:   "last_valid_primary_contact",
	StepLastValidSecondaryContact: "last_valid_secondary_contact",
	StepCurrAddressOnly:           "curr_address_only",
	StepDefaultGetUTCDateIfNull:   "default_getutcdate_if_null",
	StepExtractDate:               "extract_date",
	StepIdentityInsert:            "identity_insert",
	StepAddScore:                  "add_score",
	StepAddIndicator:              "add_indicator",
	StepAddHistory:                "add_history",
	StepAddReportLookup:           "add_report_lookup",
	StepPolicyExceptions:          "policy_exceptions",
	StepWarrantyField:             "warranty_field",
	StepAddCollateral:             "add_collateral",
}

var stepKinds = func() map[string]StepKind {
	m := make(map[string]StepKind, len(stepNames))
	for k, n := range stepNames {
		m[n] = k
	}
	return m
}()

// StepNames returns every known mapping-type name, for suggestion text in
// contract errors.
func StepNames() []string {
	names := make([]string, 0, len(stepNames))
	for _, n := range stepNames {
		names = append(names, n)
	}
	return names
}

func (k StepKind) String() string { return stepNames[k] }

// MappingStep is one parsed token of a mapping-type chain.
type MappingStep struct {
	Kind  StepKind
	Param string
	Slot  int
}

// RowCreating reports whether the step appends rows instead of transforming
// a value.
func (s MappingStep) RowCreating() bool {
	switch s.Kind {
	case StepAddScore, StepAddIndicator, StepAddHistory, StepAddReportLookup,
		StepPolicyExceptions, StepWarrantyField, StepAddCollateral:
		return true
	}
	return false
}

func (s MappingStep) String() string {
	if s.Param == "" && s.Slot == 0 {
		return s.Kind.String()
	}
	if s.Kind == StepAddCollateral {
		return s.Kind.String() + "(" + strconv.Itoa(s.Slot) + ")"
	}
	return s.Kind.String() + "(" + s.Param + ")"
}

// ParseMappingStep parses one mapping-type token such as "numbers_only" or
// "add_score(FICO)".
func ParseMappingStep(token string) (MappingStep, error) {
	token = strings.TrimSpace(token)
	name, param := token, ""
	if i := strings.IndexByte(token, '('); i >= 0 {
		if !strings.HasSuffix(token, ")") {
			return MappingStep{}, ErrUnknownMappingType.New(token, "")
		}
		name = strings.TrimSpace(token[:i])
		param = strings.TrimSpace(token[i+1 : len(token)-1])
	}

	kind, ok := stepKinds[strings.ToLower(name)]
	if !ok {
		similar := similartext.FindFromMap(stepKinds, strings.ToLower(name))
		return MappingStep{}, ErrUnknownMappingType.New(name, similar)
	}

	step := MappingStep{Kind: kind, Param: param}
	switch kind {
	case StepAddScore, StepAddIndicator, StepWarrantyField:
		if param == "" {
			return MappingStep{}, ErrContractInvalid.New(
				"mapping type " + name + " requires a parameter")
		}
	case StepAddCollateral:
		slot, err := strconv.Atoi(param)
		if err != nil || slot < 1 || slot > 4 {
			return MappingStep{}, ErrContractInvalid.New(
				"mapping type add_collateral requires a slot 1-4, got " + strconv.Quote(param))
		}
		step.Slot = slot
	case StepAddReportLookup, StepPolicyExceptions:
		// Parameter optional.
	default:
		if param != "" {
			return MappingStep{}, ErrContractInvalid.New(
				"mapping type " + name + " takes no parameter")
		}
	}
	return step, nil
}

// ParseMappingChain parses an ordered list of mapping-type tokens.
func ParseMappingChain(tokens []string) ([]MappingStep, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	chain := make([]MappingStep, 0, len(tokens))
	for _, t := range tokens {
		step, err := ParseMappingStep(t)
		if err != nil {
			return nil, err
		}
		chain = append(chain, step)
	}
	return chain, nil
}
