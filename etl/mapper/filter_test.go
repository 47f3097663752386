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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
)

func TestFilterRequiredAttributes(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="primary" ssn="111"/>
		<applicant con_id="2" applicant_type="cosigner"/>
		<applicant applicant_type="secondary"/>
		<applicant con_id="4" applicant_type="SECONDARY"/>
	</application>`)

	got, err := f.Elements(doc, etl.ElementContact)
	require.NoError(err)
	// The cosigner fails the value set, the third element lacks con_id, and
	// value-set membership is case-insensitive.
	require.Len(got, 2)
	require.Equal("1", got[0].SelectAttr("con_id"))
	require.Equal("4", got[1].SelectAttr("con_id"))
}

func TestFilterDeduplicatesByPriority(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="secondary" first_name="early"/>
		<applicant con_id="1" applicant_type="primary" first_name="winner"/>
		<applicant con_id="1" applicant_type="secondary" first_name="late"/>
	</application>`)

	got, err := f.Elements(doc, etl.ElementContact)
	require.NoError(err)
	require.Len(got, 1)
	// Priority beats textual position: the primary wins even though a
	// secondary occurs after it.
	require.Equal("winner", got[0].SelectAttr("first_name"))
}

func TestFilterDeduplicatesLastWins(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="primary" first_name="stale"/>
		<applicant con_id="1" applicant_type="primary" first_name="fresh"/>
		<applicant con_id="2" applicant_type="secondary" first_name="other"/>
	</application>`)

	got, err := f.Elements(doc, etl.ElementContact)
	require.NoError(err)
	require.Len(got, 2)
	require.Equal("fresh", got[0].SelectAttr("first_name"))
	require.Equal("other", got[1].SelectAttr("first_name"))
}

func TestFilterChildDedup(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="primary">
			<address addr_type="CURR" line1="12 Byron Rd"/>
			<address addr_type="CURR" line1="14 Byron Rd"/>
			<address addr_type="PREV" line1="9 Old Town"/>
		</applicant>
		<applicant con_id="2" applicant_type="secondary">
			<address addr_type="CURR" line1="77 Elm St"/>
		</applicant>
	</application>`)

	got, err := f.Elements(doc, etl.ElementAddress)
	require.NoError(err)
	// One per (contact, type): the duplicate CURR under contact 1 collapses
	// to its last occurrence, the same type under contact 2 survives.
	require.Len(got, 3)
	require.Equal("14 Byron Rd", got[0].SelectAttr("line1"))
	require.Equal("9 Old Town", got[1].SelectAttr("line1"))
	require.Equal("77 Elm St", got[2].SelectAttr("line1"))

	require.Equal("1", f.ContactIdentity(got[0]))
	require.Equal("2", f.ContactIdentity(got[2]))
}

func TestFilterMissingElements(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application app_id="1"/>`)

	got, err := f.Elements(doc, etl.ElementContact)
	require.NoError(err)
	require.Empty(got)

	// No employment rule in the contract at all.
	got, err = f.Elements(doc, etl.ElementEmployment)
	require.NoError(err)
	require.Empty(got)
}

func TestContacts(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="primary" first_name="Ada" ssn="111"/>
		<applicant con_id="2" applicant_type="secondary" last_name="Babbage"/>
		<applicant con_id="3" applicant_type="secondary"/>
	</application>`)

	ctx := etl.NewEmptyContext()
	contacts, err := f.Contacts(ctx, doc)
	require.NoError(err)

	// Contact 3 has no meaningful field and is suppressed with a warning.
	require.Len(contacts.All, 2)
	require.NotNil(contacts.Primary)
	require.Equal("Ada", contacts.Primary.SelectAttr("first_name"))
	require.NotNil(contacts.Secondary)
	require.Equal("Babbage", contacts.Secondary.SelectAttr("last_name"))

	_, ok := contacts.ByIdentity("2")
	require.True(ok)
	_, ok = contacts.ByIdentity("3")
	require.False(ok)

	warnings := ctx.Warnings()
	require.Len(warnings, 1)
	require.Contains(warnings[0].Message, "contact 3 suppressed")
}

func TestContactsSecondaryLastWins(t *testing.T) {
	require := require.New(t)

	f := NewFilter(contactContract())
	doc := parseXML(t, `<application>
		<applicant con_id="1" applicant_type="primary" ssn="111"/>
		<applicant con_id="2" applicant_type="secondary" first_name="first"/>
		<applicant con_id="3" applicant_type="secondary" first_name="second"/>
	</application>`)

	contacts, err := f.Contacts(etl.NewEmptyContext(), doc)
	require.NoError(err)
	require.Len(contacts.All, 3)
	require.Equal("second", contacts.Secondary.SelectAttr("first_name"))
}

func TestContactsWithoutRule(t *testing.T) {
	require := require.New(t)

	f := NewFilter(&etl.Contract{})
	doc := parseXML(t, `<application><applicant con_id="1"/></application>`)

	contacts, err := f.Contacts(etl.NewEmptyContext(), doc)
	require.NoError(err)
	require.Empty(contacts.All)
	require.Nil(contacts.Primary)
}
