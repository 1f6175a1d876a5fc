package language

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func TestSelectOperation(t *testing.T) {
	doc, err := ParseQuery(`query A { a } mutation B { b }`)
	require.NoError(t, err)

	require.Nil(t, SelectOperation(doc, ""))
	require.Equal(t, Mutation, SelectOperation(doc, "B").Operation)
	require.Nil(t, SelectOperation(doc, "C"))

	single, err := ParseQuery(`{ a }`)
	require.NoError(t, err)
	require.Equal(t, Query, SelectOperation(single, "").Operation)
}

func TestParseQueryReportsLocation(t *testing.T) {
	_, err := ParseQuery("{\n  a(")
	var located *gqlerror.Error
	require.ErrorAs(t, err, &located)
	require.Equal(t, 2, located.Locations[0].Line)
}
