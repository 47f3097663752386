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

package mapper

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/appsink/appsink/etl"
)

// auxiliaryRows interprets the row-creating mappings of one table. A row is
// emitted only when its meaningful source fields are populated after chain
// evaluation; defaults never create rows on their own. Every emitted row
// carries the application id.
func (e *Engine) auxiliaryRows(ctx *etl.Context, appID int64, t *etl.TableMapping, env *rowEnv) ([]etl.Row, error) {
	var rows []etl.Row

	var policyRows []etl.Row
	var policyNotes interface{}
	policyNotesSet := false

	warranty := map[string]etl.Row{}
	warrantyHasData := map[string]bool{}
	warrantyBits := map[string][]string{}
	var warrantyOrder []string

	collateral := map[int]etl.Row{}
	collateralTriggered := map[int]bool{}
	collateralMappings := map[int][]*etl.FieldMapping{}

	for _, m := range t.Mappings {
		step, ok := rowCreatingStep(m)
		if !ok {
			continue
		}
		nodes, err := env.doc.Select(m.XMLPath)
		if err != nil {
			return nil, err
		}

		switch step.Kind {
		case etl.StepAddScore:
			for _, n := range nodes {
				raw, has := Attr(n, m.XMLAttribute)
				cv, err := e.runChain(ctx, m, raw, has, env)
				if err != nil {
					return nil, err
				}
				if !cv.has || !numeric(cv.v) {
					continue
				}
				score, ok := e.convert(ctx, t, m, cv.v)
				if !ok {
					continue
				}
				rows = append(rows, etl.Row{
					"app_id":           appID,
					"score_identifier": scalarParam(step.Param),
					"score":            score,
				})
			}

		case etl.StepAddIndicator:
			for _, n := range nodes {
				raw, has := Attr(n, m.XMLAttribute)
				cv, err := e.runChain(ctx, m, raw, has, env)
				if err != nil {
					return nil, err
				}
				if !cv.has || !etl.Truthy(cv.v) {
					continue
				}
				rows = append(rows, etl.Row{
					"app_id":    appID,
					"indicator": step.Param,
					"value":     "1",
				})
			}

		case etl.StepAddHistory:
			source := lastSegment(m.XMLPath)
			for _, n := range nodes {
				raw, has := Attr(n, m.XMLAttribute)
				cv, err := e.runChain(ctx, m, raw, has, env)
				if err != nil {
					return nil, err
				}
				if !cv.has || !meaningfulValue(cv.v) {
					continue
				}
				v, ok := e.convert(ctx, t, m, cv.v)
				if !ok {
					continue
				}
				rows = append(rows, etl.Row{
					"app_id": appID,
					"name":   m.XMLAttribute,
					"source": source,
					"value":  v,
				})
			}

		case etl.StepAddReportLookup:
			for _, n := range nodes {
				raw, has := Attr(n, m.XMLAttribute)
				cv, err := e.runChain(ctx, m, raw, has, env)
				if err != nil {
					return nil, err
				}
				if !cv.has || !meaningfulValue(cv.v) {
					continue
				}
				v, ok := e.convert(ctx, t, m, cv.v)
				if !ok {
					continue
				}
				row := etl.Row{
					"app_id": appID,
					"name":   m.XMLAttribute,
					"value":  v,
				}
				if step.Param != "" {
					row["source_report_key"] = scalarParam(step.Param)
				}
				rows = append(rows, row)
			}

		case etl.StepPolicyExceptions:
			if step.Param == "" {
				// The parameterless variant supplies the shared notes.
				for _, n := range nodes {
					raw, has := Attr(n, m.XMLAttribute)
					cv, err := e.runChain(ctx, m, raw, has, env)
					if err != nil {
						return nil, err
					}
					if !cv.has || !meaningfulValue(cv.v) {
						continue
					}
					if v, ok := e.convert(ctx, t, m, cv.v); ok {
						policyNotes, policyNotesSet = v, true
						break
					}
				}
				continue
			}
			for _, n := range nodes {
				raw, has := Attr(n, m.XMLAttribute)
				cv, err := e.runChain(ctx, m, raw, has, env)
				if err != nil {
					return nil, err
				}
				if !cv.has || !meaningfulValue(cv.v) {
					continue
				}
				v, ok := e.convert(ctx, t, m, cv.v)
				if !ok {
					continue
				}
				policyRows = append(policyRows, etl.Row{
					"app_id":                     appID,
					"policy_exception_type_enum": scalarParam(step.Param),
					"reason_code":                v,
				})
			}

		case etl.StepWarrantyField:
			bucket := step.Param
			if _, ok := warranty[bucket]; !ok {
				warranty[bucket] = etl.Row{
					"app_id":             appID,
					"warranty_type_enum": scalarParam(bucket),
				}
				warrantyOrder = append(warrantyOrder, bucket)
			}
			if m.Type == etl.Bit {
				warrantyBits[bucket] = append(warrantyBits[bucket], m.TargetColumn)
			}
			if len(nodes) == 0 {
				continue
			}
			raw, has := Attr(nodes[0], m.XMLAttribute)
			cv, err := e.runChain(ctx, m, raw, has, env)
			if err != nil {
				return nil, err
			}
			if !cv.has {
				continue
			}
			v, ok := e.convert(ctx, t, m, cv.v)
			if !ok {
				continue
			}
			warranty[bucket][m.TargetColumn] = v
			if m.Type != etl.Bit {
				warrantyHasData[bucket] = true
			}

		case etl.StepAddCollateral:
			slot := step.Slot
			if _, ok := collateral[slot]; !ok {
				collateral[slot] = etl.Row{
					"app_id":     appID,
					"sort_order": int64(slot),
				}
			}
			collateralMappings[slot] = append(collateralMappings[slot], m)
			if len(nodes) == 0 {
				continue
			}
			raw, has := Attr(nodes[0], m.XMLAttribute)
			cv, err := e.runChain(ctx, m, raw, has, env)
			if err != nil {
				return nil, err
			}
			if !cv.has {
				continue
			}
			v, ok := e.convert(ctx, t, m, cv.v)
			if !ok {
				continue
			}
			collateral[slot][m.TargetColumn] = v
			if collateralCreates(m) {
				collateralTriggered[slot] = true
			}
		}
	}

	for _, r := range policyRows {
		if policyNotesSet {
			r["notes"] = policyNotes
		}
		rows = append(rows, r)
	}

	for _, bucket := range warrantyOrder {
		if !warrantyHasData[bucket] {
			continue
		}
		row := warranty[bucket]
		for _, col := range warrantyBits[bucket] {
			if !row.Has(col) {
				row[col] = int64(0)
			}
		}
		rows = append(rows, row)
	}

	for slot := 1; slot <= 4; slot++ {
		if !collateralTriggered[slot] {
			continue
		}
		row := collateral[slot]
		for _, m := range collateralMappings[slot] {
			if row.Has(m.TargetColumn) {
				continue
			}
			col := t.Column(m.TargetColumn)
			switch {
			case m.HasDefault:
				row[m.TargetColumn] = m.DefaultValue
			case col != nil && col.Required && col.HasDefault:
				row[m.TargetColumn] = col.Default
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func rowCreatingStep(m *etl.FieldMapping) (etl.MappingStep, bool) {
	for _, s := range m.Chain {
		if s.RowCreating() {
			return s, true
		}
	}
	return etl.MappingStep{}, false
}

// collateralCreates reports whether a slot mapping triggers creation of its
// slot's row. Transform chains populate fields of an already-created row but
// never create one.
func collateralCreates(m *etl.FieldMapping) bool {
	return !m.HasStep(etl.StepCalculatedField) &&
		!m.HasStep(etl.StepCharToBit) &&
		!m.HasStep(etl.StepNumbersOnly)
}

// scalarParam turns a mapping-type parameter into its destination value:
// integral text becomes an integer enum code, anything else stays text.
func scalarParam(p string) interface{} {
	if i, err := strconv.ParseInt(p, 10, 64); err == nil {
		return i
	}
	return p
}

func lastSegment(xpath string) string {
	parts := strings.Split(xpath, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return xpath
}

func numeric(v interface{}) bool {
	switch s := v.(type) {
	case int, int64, float64, decimal.Decimal:
		return true
	case string:
		_, err := cast.ToFloat64E(strings.TrimSpace(s))
		return err == nil
	}
	return false
}

// meaningfulValue rejects the placeholder spellings staging XML uses for
// absent data.
func meaningfulValue(v interface{}) bool {
	s := strings.TrimSpace(cast.ToString(v))
	return s != "" && !strings.EqualFold(s, "null") && !strings.EqualFold(s, "none")
}
