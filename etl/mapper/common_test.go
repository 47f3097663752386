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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/parse"
)

func loadContract(t *testing.T, doc string) *etl.Contract {
	t.Helper()
	c, err := etl.NewLoader(parse.Parse).LoadBytes(context.Background(), []byte(doc))
	require.NoError(t, err)
	return c
}

func parseXML(t *testing.T, xml string) *Document {
	t.Helper()
	d, err := ParseDocument([]byte(xml))
	require.NoError(t, err)
	return d
}

// contactContract is the minimal rule set most filter and validator tests
// need: contacts identified by con_id with primary/secondary roles, and
// addresses one-per-type under each contact.
func contactContract() *etl.Contract {
	return &etl.Contract{
		KeyIdentifiers: map[string]etl.KeyIdentifier{
			"app_id": {XMLPath: "/application", XMLAttribute: "app_id"},
		},
		FilterRules: []*etl.FilterRule{
			{
				ElementType:       etl.ElementContact,
				XPath:             "/application/applicant",
				IdentityAttribute: "con_id",
				TypeAttribute:     "applicant_type",
				RequiredAttributes: map[string][]string{
					"con_id":         {},
					"applicant_type": {"primary", "secondary"},
				},
				PriorityOrder: []string{"primary", "secondary"},
			},
			{
				ElementType:       etl.ElementAddress,
				XPath:             "/application/applicant/address",
				IdentityAttribute: "line1",
				TypeAttribute:     "addr_type",
				RequiredAttributes: map[string][]string{
					"addr_type": {"CURR", "PREV"},
				},
				PriorityOrder: []string{"CURR", "PREV"},
			},
		},
	}
}
