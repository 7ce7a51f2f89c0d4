// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v2Doc = `{
	"case_id": "C-1001",
	"form_id": "F-7",
	"schema_version": 2,
	"is_complete": false,
	"personal_details": {
		"personal_details_id": "PD-1",
		"full_name": "Applicant",
		"age": 42
	},
	"family_details": {
		"income_expense": {
			"income": {
				"business_monthly": 1000,
				"salary_monthly": 0
			}
		},
		"family_members": [
			{"full_name": "Applicant", "relation": "self"},
			{"full_name": "Spouse", "relation": "spouse"}
		]
	}
}`

// TestParseV2 verifies flattening, group extraction, and server ids.
func TestParseV2(t *testing.T) {
	d, err := Parse([]byte(v2Doc), nil)
	require.NoError(t, err)

	assert.Equal(t, "C-1001", d.CaseID)
	assert.Equal(t, SchemaV2, d.SchemaVersion)
	assert.False(t, d.IsComplete)

	pd := d.Sections["personal_details"]
	require.NotNil(t, pd)
	assert.Equal(t, "PD-1", pd.ServerID)
	assert.Equal(t, "Applicant", pd.Fields["personal_details.full_name"])
	assert.Equal(t, float64(42), pd.Fields["personal_details.age"])

	fd := d.Sections["family_details"]
	require.NotNil(t, fd)
	assert.Empty(t, fd.ServerID)
	assert.Equal(t, float64(1000),
		fd.Fields["family_details.income_expense.income.business_monthly"])
	require.Len(t, fd.Groups["family_members"], 2)
	assert.Equal(t, "self", fd.Groups["family_members"][0]["relation"])
}

const v1Doc = `{
	"case_id": "C-0042",
	"family_details": {
		"income_expense": {
			"income": {
				"business": 900,
				"salary": 100
			},
			"expense": {
				"household": 400
			}
		}
	}
}`

// TestMigrateV1 verifies flat names become split monthly/yearly pairs and
// the version is detected as 1 so the old cash-surplus rule set applies.
func TestMigrateV1(t *testing.T) {
	d, err := Parse([]byte(v1Doc), nil)
	require.NoError(t, err)

	assert.Equal(t, SchemaV1, d.SchemaVersion)

	fd := d.Sections["family_details"]
	require.NotNil(t, fd)

	_, flat := fd.Fields["family_details.income_expense.income.business"]
	assert.False(t, flat, "flat name must be gone after migration")
	assert.Equal(t, float64(900),
		fd.Fields["family_details.income_expense.income.business_monthly"])
	assert.Equal(t, float64(10800),
		fd.Fields["family_details.income_expense.income.business_yearly"])
	assert.Equal(t, float64(400),
		fd.Fields["family_details.income_expense.expense.household_monthly"])
}

// TestMigrateAmbiguous verifies conflicting flat+split values keep the
// split value and never fail.
func TestMigrateAmbiguous(t *testing.T) {
	doc := `{
		"case_id": "C-9",
		"schema_version": 1,
		"family_details": {
			"income_expense": {
				"income": {
					"business": 900,
					"business_monthly": 950
				}
			}
		}
	}`

	d, err := Parse([]byte(doc), nil)
	require.NoError(t, err)

	fd := d.Sections["family_details"]
	assert.Equal(t, float64(950),
		fd.Fields["family_details.income_expense.income.business_monthly"])
}

// TestParseRejectsMissingCaseID verifies shape validation.
// TestParseKeepsOtherIDFields verifies only "<sectionKey>_id" becomes the
// server id; identity-document fields ending in _id stay ordinary fields.
func TestParseKeepsOtherIDFields(t *testing.T) {
	doc := `{
		"case_id": "C-77",
		"personal_details": {
			"personal_details_id": "PD-9",
			"national_id": "N-123456",
			"voter_id": "V-654321"
		}
	}`
	d, err := Parse([]byte(doc), nil)
	require.NoError(t, err)

	pd := d.Sections["personal_details"]
	require.NotNil(t, pd)
	assert.Equal(t, "PD-9", pd.ServerID)
	assert.Equal(t, "N-123456", pd.Fields["personal_details.national_id"])
	assert.Equal(t, "V-654321", pd.Fields["personal_details.voter_id"])
}

func TestParseRejectsMissingCaseID(t *testing.T) {
	_, err := Parse([]byte(`{"personal_details": {}}`), nil)
	assert.Error(t, err)
}

// TestEncodeDecodeRoundtrip verifies storage serialization.
func TestEncodeDecodeRoundtrip(t *testing.T) {
	d, err := Parse([]byte(v2Doc), nil)
	require.NoError(t, err)

	data, err := d.Encode()
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, d.CaseID, back.CaseID)
	assert.Equal(t, d.Sections["personal_details"].ServerID,
		back.Sections["personal_details"].ServerID)
}
