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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseFlow/services/counseling/fieldstore"
)

const inc = "family_details.income_expense.income."

func buildIncomeGraph(t *testing.T) (*fieldstore.Store, *Graph) {
	t.Helper()
	store := fieldstore.New(nil, nil)

	b := NewBuilder("income-test").
		AddRules(MonthlyYearlyPair(inc + "business")).
		AddRules(MonthlyYearlyPair(inc + "salary")).
		AddRule(Sum("total_income_monthly", inc+"total_monthly",
			inc+"business_monthly", inc+"salary_monthly", inc+"other_monthly")).
		AddRules(SurplusDeficit("net_monthly",
			inc+"total_monthly",
			"family_details.income_expense.expense.total_monthly",
			"family_details.income_expense.surplus_monthly",
			"family_details.income_expense.deficit_monthly"))

	g, err := b.Build(store, nil)
	require.NoError(t, err)
	return store, g
}

// TestMonthlyYearlySync verifies both directions of the pair and that a
// single write settles without oscillation.
func TestMonthlyYearlySync(t *testing.T) {
	store, _ := buildIncomeGraph(t)

	store.Set(inc+"business_monthly", 1000.0)
	assert.InDelta(t, 12000.0, store.Number(inc+"business_yearly"), 1e-9)

	store.Set(inc+"business_yearly", 6000.0)
	assert.InDelta(t, 500.0, store.Number(inc+"business_monthly"), 1e-9)

	// A value that does not divide evenly must still settle in one pass.
	store.Set(inc+"salary_yearly", 100.0)
	assert.InDelta(t, 100.0/12, store.Number(inc+"salary_monthly"), 1e-9)
	assert.InDelta(t, 100.0, store.Number(inc+"salary_yearly"), 1e-9)
}

// TestNoOscillation counts writes during propagation: one user write to a
// monthly field must produce exactly one derived write per dependent rule,
// never a feedback loop.
func TestNoOscillation(t *testing.T) {
	store, _ := buildIncomeGraph(t)

	writes := map[fieldstore.Path]int{}
	store.Subscribe("", func(p fieldstore.Path, _ fieldstore.Value) {
		writes[p]++
	})

	store.Set(inc+"business_monthly", 700.0)

	assert.Equal(t, 1, writes[inc+"business_monthly"])
	assert.Equal(t, 1, writes[inc+"business_yearly"])
	assert.Equal(t, 1, writes[inc+"total_monthly"])
}

// TestSumTreatsUnsetAsZero verifies totals across partially unset components.
func TestSumTreatsUnsetAsZero(t *testing.T) {
	store, _ := buildIncomeGraph(t)

	store.Set(inc+"business_monthly", 1000.0)
	assert.InDelta(t, 1000.0, store.Number(inc+"total_monthly"), 1e-9)

	store.Set(inc+"salary_monthly", 250.0)
	assert.InDelta(t, 1250.0, store.Number(inc+"total_monthly"), 1e-9)

	// Unparseable component counts as 0, not an error.
	store.Set(inc+"other_monthly", "n/a")
	assert.InDelta(t, 1250.0, store.Number(inc+"total_monthly"), 1e-9)
}

// TestSurplusDeficitExclusion verifies exactly one of surplus/deficit is
// nonzero, and both are 0 at break-even.
func TestSurplusDeficitExclusion(t *testing.T) {
	store, _ := buildIncomeGraph(t)
	const exp = "family_details.income_expense.expense.total_monthly"
	const surplus = "family_details.income_expense.surplus_monthly"
	const deficit = "family_details.income_expense.deficit_monthly"

	store.Set(inc+"business_monthly", 1000.0)
	store.Set(exp, 400.0)
	assert.InDelta(t, 600.0, store.Number(surplus), 1e-9)
	assert.Zero(t, store.Number(deficit))

	store.Set(exp, 1500.0)
	assert.Zero(t, store.Number(surplus))
	assert.InDelta(t, 500.0, store.Number(deficit), 1e-9)

	store.Set(exp, 1000.0)
	assert.Zero(t, store.Number(surplus))
	assert.Zero(t, store.Number(deficit))
}

// TestChainedPropagation verifies a write ripples through total -> surplus.
func TestChainedPropagation(t *testing.T) {
	store, _ := buildIncomeGraph(t)

	store.Set(inc+"business_monthly", 1000.0)
	assert.InDelta(t, 1000.0,
		store.Number("family_details.income_expense.surplus_monthly"), 1e-9)
}

// TestCashSurplusVersions verifies the schema-tagged rule variants.
func TestCashSurplusVersions(t *testing.T) {
	for _, tc := range []struct {
		name       string
		otherIn    fieldstore.Path
		want       float64
	}{
		{"v2 includes other income", "g.other_income", 130.0},
		{"v1 omits other income", "", 100.0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := fieldstore.New(nil, nil)
			g, err := NewBuilder("cash").
				AddRule(CashSurplus("cash_surplus", "g.cash_surplus",
					"g.profit", "g.qardan_repayment", "g.household_expense", tc.otherIn)).
				Build(store, nil)
			require.NoError(t, err)
			require.Equal(t, 1, g.Rules())

			store.Set("g.profit", 500.0)
			store.Set("g.qardan_repayment", 300.0)
			store.Set("g.household_expense", 100.0)
			store.Set("g.other_income", 30.0)

			assert.InDelta(t, tc.want, store.Number("g.cash_surplus"), 1e-9)
		})
	}
}

// TestSelfCycleRejected verifies output-in-inputs fails at registration.
func TestSelfCycleRejected(t *testing.T) {
	store := fieldstore.New(nil, nil)
	_, err := NewBuilder("bad").
		AddRule(Sum("loop", "a.total", "a.total", "a.x")).
		Build(store, nil)
	require.ErrorIs(t, err, ErrSelfCycle)
}

// TestCycleRejected verifies an indirect cycle fails at build time.
func TestCycleRejected(t *testing.T) {
	store := fieldstore.New(nil, nil)
	_, err := NewBuilder("bad").
		AddRule(Sum("a", "p.b", "p.a")).
		AddRule(Sum("b", "p.c", "p.b")).
		AddRule(Sum("c", "p.a", "p.c")).
		Build(store, nil)

	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.NotEmpty(t, cycleErr.Path)
}

// TestDuplicateRuleRejected verifies duplicate ids fail at build time.
func TestDuplicateRuleRejected(t *testing.T) {
	store := fieldstore.New(nil, nil)
	_, err := NewBuilder("bad").
		AddRule(Sum("dup", "p.x", "p.a")).
		AddRule(Sum("dup", "p.y", "p.b")).
		Build(store, nil)
	require.ErrorIs(t, err, ErrDuplicateRule)
}

// TestUnknownPairRejected verifies dangling pair references fail at build time.
func TestUnknownPairRejected(t *testing.T) {
	store := fieldstore.New(nil, nil)
	r := Sum("half", "p.y", "p.x")
	r.Pair = "missing"
	_, err := NewBuilder("bad").AddRule(r).Build(store, nil)
	require.ErrorIs(t, err, ErrUnknownPair)
}

// TestSettle verifies hydrated inputs produce consistent derived state.
func TestSettle(t *testing.T) {
	store, g := buildIncomeGraph(t)

	// Simulate hydration writing raw values without propagation.
	store.SetDerived(inc+"business_monthly", 800.0)
	store.SetDerived(inc+"salary_monthly", 200.0)

	g.Settle()
	assert.InDelta(t, 1000.0, store.Number(inc+"total_monthly"), 1e-9)
	assert.InDelta(t, 9600.0, store.Number(inc+"business_yearly"), 1e-9)
}

// TestSettleOneSidedPair verifies a document carrying only one side of a
// monthly/yearly pair keeps the loaded value: the unset side holds no
// value, so it never originates a conversion that would zero the loaded
// side.
func TestSettleOneSidedPair(t *testing.T) {
	store, g := buildIncomeGraph(t)

	store.SetDerived(inc+"salary_yearly", 24000.0)

	g.Settle()
	assert.InDelta(t, 24000.0, store.Number(inc+"salary_yearly"), 1e-9)
	assert.InDelta(t, 2000.0, store.Number(inc+"salary_monthly"), 1e-9)
	assert.InDelta(t, 2000.0, store.Number(inc+"total_monthly"), 1e-9)

	// And the monthly-only case, which the end of the chain depends on.
	store2, g2 := buildIncomeGraph(t)
	store2.SetDerived(inc+"business_monthly", 1000.0)

	g2.Settle()
	assert.InDelta(t, 1000.0, store2.Number(inc+"business_monthly"), 1e-9)
	assert.InDelta(t, 12000.0, store2.Number(inc+"business_yearly"), 1e-9)
	assert.InDelta(t, 1000.0, store2.Number("family_details.income_expense.surplus_monthly"), 1e-9)
}
