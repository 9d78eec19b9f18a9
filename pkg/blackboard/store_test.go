package blackboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStringsNilIsEmptyArray(t *testing.T) {
	b, err := jsonStrings(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = jsonStrings([]string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(b))
}

func TestJSONMapNilIsEmptyObject(t *testing.T) {
	b, err := jsonMap(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestJSONMapOrNull(t *testing.T) {
	v, err := jsonMapOrNull(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonMapOrNull(map[string]any{"k": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":1}`, string(v.([]byte)))
}

func TestDecodeStrings(t *testing.T) {
	assert.Nil(t, decodeStrings(nil))
	assert.Nil(t, decodeStrings([]byte(`[]`)))
	assert.Equal(t, []string{"x"}, decodeStrings([]byte(`["x"]`)))
	assert.Nil(t, decodeStrings([]byte(`not json`)))
}

func TestTransientError(t *testing.T) {
	inner := errors.New("connection reset")
	err := transient("insert task", inner)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "insert task")

	assert.False(t, IsTransient(ErrNotFound))
	assert.False(t, IsTransient(nil))
}
