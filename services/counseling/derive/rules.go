// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

// Rule-family constructors for the arithmetic the counseling form needs.
// All of them treat missing or unparseable inputs as 0.

// MonthlyYearlyPair returns the two directed rules keeping a monthly/yearly
// field pair in sync: <base>_monthly x12 -> <base>_yearly and
// <base>_yearly /12 -> <base>_monthly. The rules declare each other as Pair
// so a write from one side never re-triggers the other.
func MonthlyYearlyPair(base fieldstore.Path) []Rule {
	monthly := base + "_monthly"
	yearly := base + "_yearly"
	m2y := "monthly_to_yearly:" + string(base)
	y2m := "yearly_to_monthly:" + string(base)

	return []Rule{
		{
			ID:     m2y,
			Inputs: []fieldstore.Path{monthly},
			Output: yearly,
			Pair:   y2m,
			Compute: func(in []fieldstore.Value) fieldstore.Value {
				return fieldstore.Num(in[0]) * 12
			},
		},
		{
			ID:     y2m,
			Inputs: []fieldstore.Path{yearly},
			Output: monthly,
			Pair:   m2y,
			Compute: func(in []fieldstore.Value) fieldstore.Value {
				return fieldstore.Num(in[0]) / 12
			},
		},
	}
}

// Sum returns a rule writing the sum of all inputs to output.
func Sum(id string, output fieldstore.Path, inputs ...fieldstore.Path) Rule {
	return Rule{
		ID:     id,
		Inputs: inputs,
		Output: output,
		Compute: func(in []fieldstore.Value) fieldstore.Value {
			var total float64
			for _, v := range in {
				total += fieldstore.Num(v)
			}
			return total
		},
	}
}

// Difference returns a rule writing a-b to output (profit, net totals).
func Difference(id string, output, a, b fieldstore.Path) Rule {
	return Rule{
		ID:     id,
		Inputs: []fieldstore.Path{a, b},
		Output: output,
		Compute: func(in []fieldstore.Value) fieldstore.Value {
			return fieldstore.Num(in[0]) - fieldstore.Num(in[1])
		},
	}
}

// SurplusDeficit returns the two rules routing income-expense into exactly
// one of the surplus or deficit fields. The other is always written 0, so
// at most one of the pair is nonzero and both are 0 at break-even.
func SurplusDeficit(idPrefix string, income, expense, surplusOut, deficitOut fieldstore.Path) []Rule {
	return []Rule{
		{
			ID:     idPrefix + ":surplus",
			Inputs: []fieldstore.Path{income, expense},
			Output: surplusOut,
			Compute: func(in []fieldstore.Value) fieldstore.Value {
				d := fieldstore.Num(in[0]) - fieldstore.Num(in[1])
				if d > 0 {
					return d
				}
				return float64(0)
			},
		},
		{
			ID:     idPrefix + ":deficit",
			Inputs: []fieldstore.Path{income, expense},
			Output: deficitOut,
			Compute: func(in []fieldstore.Value) fieldstore.Value {
				d := fieldstore.Num(in[1]) - fieldstore.Num(in[0])
				if d > 0 {
					return d
				}
				return float64(0)
			},
		},
	}
}

// CashSurplus returns the cash-surplus rule:
//
//	cash surplus = profit - qardan repayment - household expense [+ other income]
//
// The otherIncome term exists only in schema v2; pass "" for v1 documents
// so the arithmetic matches what the server persisted for them.
func CashSurplus(id string, output, profit, qardan, household, otherIncome fieldstore.Path) Rule {
	inputs := []fieldstore.Path{profit, qardan, household}
	if otherIncome != "" {
		inputs = append(inputs, otherIncome)
	}
	return Rule{
		ID:     id,
		Inputs: inputs,
		Output: output,
		Compute: func(in []fieldstore.Value) fieldstore.Value {
			out := fieldstore.Num(in[0]) - fieldstore.Num(in[1]) - fieldstore.Num(in[2])
			if len(in) > 3 {
				out += fieldstore.Num(in[3])
			}
			return out
		},
	}
}
