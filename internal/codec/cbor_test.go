package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `cbor:"name"`
	Tags  map[string]string `cbor:"tags,omitempty"`
	Order []string          `cbor:"order"`
	At    time.Time         `cbor:"at"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	v := sample{
		Name:  "u1",
		Tags:  map[string]string{"z": "1", "a": "2", "m": "3"},
		Order: []string{"b", "a"},
	}
	first, err := Marshal(v)
	require.NoError(t, err)
	for range 10 {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTimePrecisionSurvives(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	data, err := Marshal(sample{Name: "u1", At: at})
	require.NoError(t, err)

	var got sample
	require.NoError(t, Unmarshal(data, &got))
	assert.True(t, at.Equal(got.At), "got %v", got.At)
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"name": "u1", "future_field": 42})
	require.NoError(t, err)

	var got sample
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, "u1", got.Name)
}
