package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2025, 6, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}

	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorBlank(t *testing.T) {
	out, err := ParseCursor("   ")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, value := range []string{"%%%", "bm8tc2VwYXJhdG9y", "bm90LWEtdGltZXxhYmM"} {
		_, err := ParseCursor(value)
		assert.True(t, errors.Is(err, ErrInvalidCursor), "value %q: %v", value, err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
}

func TestWindow(t *testing.T) {
	w := NewWindow(0, 0, 20, 100)
	assert.Equal(t, Window{Page: 1, Limit: 20}, w)
	assert.Equal(t, 0, w.Offset())

	w = NewWindow(3, 500, 20, 100)
	assert.Equal(t, Window{Page: 3, Limit: 100}, w)
	assert.Equal(t, 200, w.Offset())
}
