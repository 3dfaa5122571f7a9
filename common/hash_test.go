package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlake2Hash(t *testing.T) {
	h := Blake2Hash([]byte("abc"))
	assert.Equal(t, "0xbddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319", h.Hex())
	assert.Equal(t, "bddd..2319", h.String_short())
	assert.Equal(t, h, HexToHash(h.Hex()))
	assert.Equal(t, h, BytesToHash(h.Bytes()))
}

func TestHashJSON(t *testing.T) {
	h := Blake2Hash([]byte("wvm"))
	b, err := json.Marshal(h)
	require.NoError(t, err)
	var back Hash
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, h, back)
}

func TestIsHexHash(t *testing.T) {
	h := Blake2Hash(nil).Hex()
	assert.True(t, IsHexHash(h))
	assert.True(t, IsHexHash(h[2:]))
	assert.False(t, IsHexHash("0x1234"))
	assert.False(t, IsHexHash("program.bin"))
}

func TestUintBytes(t *testing.T) {
	assert.Equal(t, []byte{1, 0, 0, 0}, Uint32ToBytes(1))
	assert.Equal(t, uint32(0x04030201), BytesToUint32([]byte{1, 2, 3, 4}))
	assert.Len(t, Uint64ToBytes(1), 8)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abcdef01", shortHash("abcdef0123456789"))
	assert.Equal(t, "abc", shortHash("abc"))
}
