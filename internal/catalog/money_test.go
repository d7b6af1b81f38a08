package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"300":   30000,
		"85.5":  8550,
		"85.50": 8550,
		"0.05":  5,
		".5":    50,
		"-12":   -1200,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "abc", "1.234", "1.", "1.x"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		Price Money `json:"price"`
		Old   Money `json:"old"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price": 450, "old": "85.00"}`), &payload))
	assert.Equal(t, Major(450), payload.Price)
	assert.Equal(t, Money(8500), payload.Old)

	out, err := json.Marshal(map[string]Money{"a": Major(300), "b": 8550})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 300, "b": 85.50}`, string(out))
	assert.Equal(t, "85.50", Money(8550).String())
}
