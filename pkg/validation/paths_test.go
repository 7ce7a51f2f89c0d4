// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFormPath(t *testing.T) {
	valid := []string{
		"is_complete",
		"family_details.income_expense.income.business_monthly",
		"business_details.economic_growth.year_1.revenue",
	}
	for _, p := range valid {
		assert.NoError(t, ValidateFormPath(p), p)
	}

	invalid := []string{
		"",
		"Family_Details.name",
		"a..b",
		"a.b.",
		".a.b",
		"1starts_with_digit",
		"has space",
	}
	for _, p := range invalid {
		assert.Error(t, ValidateFormPath(p), p)
	}
}

func TestValidateSectionKey(t *testing.T) {
	assert.NoError(t, ValidateSectionKey("qardan_details"))
	assert.Error(t, ValidateSectionKey(""))
	assert.Error(t, ValidateSectionKey("Qardan"))
	assert.Error(t, ValidateSectionKey("a.b"))
}

func TestValidateCaseID(t *testing.T) {
	assert.NoError(t, ValidateCaseID("C-1001"))
	assert.NoError(t, ValidateCaseID("42"))
	assert.Error(t, ValidateCaseID(""))
	assert.Error(t, ValidateCaseID("bad/id"))
	assert.Error(t, ValidateCaseID("this-id-is-way-too-long-to-be-a-real-case-identifier"))
}
