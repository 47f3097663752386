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

func TestAppContext(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `<application App_ID="5" status="Open" app_id="">
		<terms rate="7" months="60"/>
		<terms rate="8"/>
		<note text="call back" status="new"/>
		<applicant con_id="1" applicant_type="primary" first_name="Ada"/>
	</application>`)

	f := NewFilter(contactContract())
	contacts, err := f.Contacts(etl.NewEmptyContext(), doc)
	require.NoError(err)

	row := appContext(doc, contacts)

	// Root attributes bind as authored and lowercased.
	require.Equal("5", row["App_ID"])
	require.Equal("5", row["app_id"])
	require.Equal("Open", row["status"])

	// terms occurs twice under the root, so none of its attributes bind.
	require.False(row.Has("rate"))
	require.False(row.Has("terms.rate"))

	// note occurs once: dotted always, bare only where the root does not
	// already own the name.
	require.Equal("call back", row["note.text"])
	require.Equal("call back", row["text"])
	require.Equal("new", row["note.status"])
	require.Equal("Open", row["status"])

	// The primary contact aggregates under the contact. prefix.
	require.Equal("Ada", row["contact.first_name"])
	require.Equal("primary", row["contact.applicant_type"])
}

func TestAppContextNoRoot(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `just text`)
	require.Empty(appContext(doc, &Contacts{}))
}
