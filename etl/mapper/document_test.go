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

func TestParseDocument(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `<application app_id="42"><applicant con_id="1"/></application>`)
	require.NotNil(doc.Root())
	require.Equal("application", doc.Root().Data)

	_, err := ParseDocument([]byte(`<application app_id="42"`))
	require.Error(err)
	require.True(etl.ErrValidation.Is(err))

	_, err = ParseDocument([]byte(`<a><b></a>`))
	require.Error(err)
	require.True(etl.ErrValidation.Is(err))
}

func TestDocumentSelect(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `<application>
		<applicant con_id="1"/>
		<applicant con_id="2"/>
	</application>`)

	nodes, err := doc.Select("/application/applicant")
	require.NoError(err)
	require.Len(nodes, 2)

	first, err := doc.First("/application/applicant")
	require.NoError(err)
	require.Equal(nodes[0], first)

	none, err := doc.First("/application/address")
	require.NoError(err)
	require.Nil(none)

	_, err = doc.Select("///[")
	require.Error(err)
	require.True(etl.ErrContractInvalid.Is(err))
}

func TestDocumentAttr(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `<application App_ID="42" status="  A  " blank=" "/>`)
	root := doc.Root()

	// Exact lookup first, case-insensitive fallback second.
	v, ok := Attr(root, "App_ID")
	require.True(ok)
	require.Equal("42", v)
	v, ok = Attr(root, "app_id")
	require.True(ok)
	require.Equal("42", v)

	v, ok = Attr(root, "status")
	require.True(ok)
	require.Equal("A", v)

	_, ok = Attr(root, "blank")
	require.False(ok)
	_, ok = Attr(root, "missing")
	require.False(ok)
	_, ok = Attr(nil, "anything")
	require.False(ok)
}

func TestDocumentIdentifier(t *testing.T) {
	require := require.New(t)

	doc := parseXML(t, `<application app_id="12345"/>`)

	v, ok := doc.Identifier(etl.KeyIdentifier{XMLPath: "/application", XMLAttribute: "app_id"})
	require.True(ok)
	require.Equal("12345", v)

	_, ok = doc.Identifier(etl.KeyIdentifier{XMLPath: "/application", XMLAttribute: "other"})
	require.False(ok)
	_, ok = doc.Identifier(etl.KeyIdentifier{XMLPath: "/nothing", XMLAttribute: "app_id"})
	require.False(ok)
}

func TestParseDocumentPlainText(t *testing.T) {
	require := require.New(t)

	// Plain text is token-wise acceptable XML; the missing root element is
	// the validator's problem, not the parser's.
	doc, err := ParseDocument([]byte(`not xml at all`))
	require.NoError(err)
	require.Nil(doc.Root())
}
