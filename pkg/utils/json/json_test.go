package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tavilyLike struct {
	Query   string   `json:"query"`
	Results []string `json:"results,omitempty"`
	Score   float64  `json:"score"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := tavilyLike{Query: "fed rate", Results: []string{"a", "b"}, Score: 0.5}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"query":"fed rate"`)

	var out tavilyLike
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOmitEmpty(t *testing.T) {
	data, err := Marshal(tavilyLike{Query: "q"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "results")
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]int{"rows": 3}))

	var got map[string]int
	require.NoError(t, NewDecoder(&buf).Decode(&got))
	assert.Equal(t, 3, got["rows"])
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]string{"route": "WEB"}, "", "  ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"route":"WEB"}`, string(data))
	assert.Contains(t, string(data), "\n  \"route\"")
}

func TestUnmarshalString(t *testing.T) {
	var got tavilyLike
	require.NoError(t, UnmarshalString(`{"query":"cpi","score":1.5}`, &got))
	assert.Equal(t, "cpi", got.Query)
	assert.InDelta(t, 1.5, got.Score, 1e-9)
}

func TestSortedKeys(t *testing.T) {
	data, err := Marshal(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(data))
}
