package anthropic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope that helps", `{"a":{"b":2}}`},
		{"brace in string", `{"q":"use } carefully"}`, `{"q":"use } carefully"}`},
		{"escaped quote", `{"q":"say \"hi\" {"}`, `{"q":"say \"hi\" {"}`},
		{"skips invalid", `{not json} {"ok":true}`, `{"ok":true}`},
		{"none", "I cannot help with that.", ""},
		{"truncated", `{"a": [1, 2`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractObject(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Label string `json:"label"`
	}
	require.NoError(t, DecodeJSON("```\n{\"label\":\"Great\"}\n```", &out))
	assert.Equal(t, "Great", out.Label)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	var out struct {
		Count int `json:"count"`
	}

	err := DecodeJSON("sorry, no", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))

	err = DecodeJSON(`{"count":"three"}`, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}
