package wvmerrors

import (
	"errors"
	"strings"
)

// Machine (M) Errors
var (
	ErrMBudgetExhausted    = errors.New("M1|BudgetExhausted: The shared instruction budget was consumed before the entry function returned.")
	ErrMDecode             = errors.New("M2|DecodeError: Instruction carries an unrecognised opcode.")
	ErrMMemoryFault        = errors.New("M3|MemoryFault: Resolved address lies outside the stack or the closure slot.")
	ErrMDivideByZero       = errors.New("M4|DivideByZero: Division or modulo by zero.")
	ErrMRefcountViolation  = errors.New("M5|RefcountViolation: Closure retained while free or released with a zero count.")
	ErrMClosureExhausted   = errors.New("M6|ClosureExhausted: All 255 closure slots are live.")
	ErrMEmptyProgram       = errors.New("M7|EmptyProgram: Instruction stream is empty.")
	ErrMProgramTooLarge    = errors.New("M8|ProgramTooLarge: Instruction stream does not fit in the stack.")
	ErrMMachineBusy        = errors.New("M9|MachineBusy: Machine instance is already running a program.")
	ErrMUnterminatedString = errors.New("M10|UnterminatedString: Printed text has no terminator inside its region.")
)

// Image (I) Errors
var (
	ErrIEmptyImage    = errors.New("I1|EmptyImage: Image contains no words.")
	ErrIMisaligned    = errors.New("I2|Misaligned: Image length is not a multiple of the word size.")
	ErrIImageNotFound = errors.New("I3|ImageNotFound: No image stored under the requested key.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	parts := strings.SplitN(err.Error(), ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
