package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "AUTH_005", ErrCodeResetTokenInvalid.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeConflict, 409},
		{ErrCodeValidation, 422},
		{ErrCodeResetTokenInvalid, 410},
		{ErrCodeAccountLocked, 423},
		{ErrCodeTreeNotFound, 404},
		{ErrCodeMediaTypeInvalid, 415},
		{ErrorCode("NO_SUCH_CODE"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), "code %s", tt.code)
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "family tree not found", DefaultMessageForCode(ErrCodeTreeNotFound))
	assert.Equal(t, "internal server error", DefaultMessageForCode(ErrorCode("NO_SUCH_CODE")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "GED", ModuleForCode(ErrCodeGedcomParse))
	assert.Equal(t, "OK", ModuleForCode(ErrCodeOK))
}

func TestClientServerClassification(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeValidation))
	assert.True(t, IsClientError(ErrCodeResetTokenInvalid))
	assert.False(t, IsClientError(ErrCodeRenderFailed))
	assert.True(t, IsServerError(ErrCodeRenderFailed))
	assert.False(t, IsServerError(ErrCodeNotFound))
}

// Every registered code must follow the MODULE_NNN naming scheme and carry
// both an HTTP status and a default message.
func TestCodeTablesAreConsistent(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z]+_\d{3}$`)

	for code := range ErrorCodeHTTPStatus {
		assert.Regexp(t, pattern, code.String(), "status table")
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "code %s has status but no default message", code)
	}
	for code := range ErrorCodeMessage {
		_, ok := ErrorCodeHTTPStatus[code]
		assert.True(t, ok, "code %s has message but no HTTP status", code)
	}
}
