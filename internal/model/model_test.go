package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("sql")
	require.NoError(t, err)
	assert.Equal(t, VersionSQL, v)
	assert.Equal(t, "sql_subscription", v.Column())

	v, err = ParseVersion("nlp")
	require.NoError(t, err)
	assert.Equal(t, "nlp_subscription", v.Column())

	for _, bad := range []string{"", "SQL", "json", "sql "} {
		_, err := ParseVersion(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, "version %q", bad)
	}
}

func TestExternalID_ScanAndMarshal(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want string
	}{
		{"int", int64(42), `42`},
		{"integral float", float64(7), `7`},
		{"fractional float", 1.5, `"1.5"`},
		{"bytes", []byte("pub-9"), `"pub-9"`},
		{"string", "pub-10", `"pub-10"`},
		{"null", nil, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ExternalID
			require.NoError(t, id.Scan(tt.src))
			b, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}

	var id ExternalID
	assert.Error(t, id.Scan(true))
}

func TestWarningErr(t *testing.T) {
	w := Warning{Kind: WarnDanglingMatchReference, Message: "no row", PublicationID: "p1", SubscriptionID: 3}
	assert.True(t, errors.Is(w.Err(), ErrDanglingMatchReference))
	assert.Contains(t, w.String(), "subscription=3")

	w = Warning{Kind: WarnInsufficientData, Message: "short"}
	assert.True(t, errors.Is(w.Err(), ErrInsufficientData))

	ws := []Warning{w, w, {Kind: WarnMalformedMatchData}}
	assert.Equal(t, 2, CountWarnings(ws, WarnInsufficientData))
}
