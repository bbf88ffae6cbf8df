package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValueReturnsStringKeyedMaps(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"title": "draft", "tags": []any{"a", "b"}, "nested": map[string]any{"k": "v"}})
	require.NoError(t, err)

	value, err := DecodeValue(data)
	require.NoError(t, err)

	decoded, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "draft", decoded["title"])
	nested, ok := decoded["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v", nested["k"])
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Marshal(map[string]any{"b": "2", "a": "1", "c": "3"})
	require.NoError(t, err)
	second, err := Marshal(map[string]any{"c": "3", "a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEqualSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	original := map[string]any{"count": 3, "ratio": 0.5, "label": "x"}
	data, err := Marshal(original)
	require.NoError(t, err)
	decoded, err := DecodeValue(data)
	require.NoError(t, err)

	assert.True(t, Equal(original, decoded))
	assert.False(t, Equal("draft", "review"))
}

func TestDecodeEmptyInput(t *testing.T) {
	t.Parallel()

	value, err := DecodeValue(nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	m, err := DecodeMap(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}
