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
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, parsed.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"!!", "bm8tc2VwYXJhdG9y", "eHx5"} {
		_, err := ParseCursor(raw)
		assert.True(t, errors.Is(err, ErrInvalidCursor), "input %q err=%v", raw, err)
	}
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	key := func(v int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(v)})} }

	page, next := Trim(rows, 2, key)
	assert.Equal(t, []int{1, 2}, page)
	require.NotNil(t, next)
	assert.Equal(t, key(2).ID, next.ID)

	page, next = Trim(rows, 5, key)
	assert.Equal(t, rows, page)
	assert.Nil(t, next)
	assert.Equal(t, "", EncodeCursor(next))
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
}
