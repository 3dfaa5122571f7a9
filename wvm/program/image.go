package program

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvmerrors"
)

// WordSize is the number of bytes per word in a binary image.
const WordSize = 4

// EncodeImage serialises code as little-endian words.
func EncodeImage(code []types.Word) []byte {
	out := make([]byte, len(code)*WordSize)
	for i, w := range code {
		binary.LittleEndian.PutUint32(out[i*WordSize:], uint32(w))
	}
	return out
}

// DecodeImage parses a binary image produced by EncodeImage or by an
// external compiler.
func DecodeImage(data []byte) ([]types.Word, error) {
	if len(data) == 0 {
		return nil, wvmerrors.ErrIEmptyImage
	}
	if len(data)%WordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", wvmerrors.ErrIMisaligned, len(data))
	}
	code := make([]types.Word, len(data)/WordSize)
	for i := range code {
		code[i] = types.Word(binary.LittleEndian.Uint32(data[i*WordSize:]))
	}
	return code, nil
}
