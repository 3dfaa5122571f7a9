package wvmerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorParts(t *testing.T) {
	assert.Equal(t, "M4", GetErrorCode(ErrMDivideByZero))
	assert.Equal(t, "DivideByZero", GetErrorName(ErrMDivideByZero))
	assert.Equal(t, "M4_DivideByZero", GetErrorCodeWithName(ErrMDivideByZero))
	assert.Equal(t, "Division or modulo by zero.", GetErrorDesc(ErrMDivideByZero))
}

func TestErrorPartsWrapped(t *testing.T) {
	// wrapping prefixes the message, so the code is no longer leading
	err := fmt.Errorf("pc 12: %w", ErrMMemoryFault)
	assert.True(t, errors.Is(err, ErrMMemoryFault))
	assert.Equal(t, "pc 12: M3", GetErrorCode(err))
}

func TestErrorPartsPlain(t *testing.T) {
	assert.Equal(t, "No Error", GetErrorName(nil))
	assert.Equal(t, "", GetErrorCode(nil))
	assert.Equal(t, "boom", GetErrorName(errors.New("boom")))
	assert.Equal(t, "", GetErrorCodeWithName(errors.New("boom")))
	assert.Equal(t, "DESC NOT SET", GetErrorDesc(errors.New("boom")))
}
