package adv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsValidAndEmpty(t *testing.T) {
	b := New()
	assert.True(t, b.Valid())
	assert.Len(t, b.Bytes(), 2*Size)
	assert.Nil(t, b.Get(TagBootOnce))
	assert.Equal(t, b[:Size], b[Size:])
}

func TestSetGet(t *testing.T) {
	b := New()
	require.NoError(t, b.Set(TagBootOnce, []byte("linux single")))
	require.NoError(t, b.Set(TagMenuSave, []byte("3")))
	assert.True(t, b.Valid())
	assert.Equal(t, []byte("linux single"), b.Get(TagBootOnce))
	assert.Equal(t, []byte("3"), b.Get(TagMenuSave))

	// replacing moves the record to the end and keeps the others
	require.NoError(t, b.Set(TagBootOnce, []byte("memtest")))
	assert.Equal(t, []byte("memtest"), b.Get(TagBootOnce))
	assert.Equal(t, []byte("3"), b.Get(TagMenuSave))
	assert.Equal(t, byte(TagMenuSave), b[8])

	require.NoError(t, b.Set(TagMenuSave, nil))
	assert.Nil(t, b.Get(TagMenuSave))
	assert.Equal(t, byte(TagBootOnce), b[8])
	assert.True(t, b.Valid())
	assert.Equal(t, b[:Size], b[Size:])
}

func TestSetErrors(t *testing.T) {
	b := New()
	assert.ErrorIs(t, b.Set(TagEnd, []byte("x")), ErrBadTag)
	assert.ErrorIs(t, b.Set(TagBootOnce, make([]byte, 256)), ErrNoSpace)

	big := bytes.Repeat([]byte{'a'}, 255)
	require.NoError(t, b.Set(TagBootOnce, big))
	assert.ErrorIs(t, b.Set(TagMenuSave, big), ErrNoSpace)
	// a failed Set leaves the block untouched
	assert.Equal(t, big, b.Get(TagBootOnce))
	assert.Nil(t, b.Get(TagMenuSave))
}

func TestValidDetectsCorruption(t *testing.T) {
	b := New()
	require.NoError(t, b.Set(TagBootOnce, []byte("x")))
	b[20] ^= 0xff
	assert.False(t, b.Valid())

	b = New()
	b[Size] = 0
	assert.False(t, b.Valid())
}

func TestReset(t *testing.T) {
	b := New()
	require.NoError(t, b.Set(TagBootOnce, []byte("x")))
	b.Reset()
	assert.Equal(t, New(), b)
}
