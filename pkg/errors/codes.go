package errors

import (
	"net/http"
	"strings"
)

// ErrorCode identifies a specific error condition.  Codes are grouped by
// module prefix (COMMON, AUTH, USER, TREE, GED, MEDIA, RPT, SEARCH, KIN,
// MAIL) so that logs and metrics can be filtered per subsystem.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes used by GetCode.
const (
	ErrCodeOK      ErrorCode = "OK"
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessagingError     ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Authentication and password-reset codes.
const (
	ErrCodeInvalidCredentials  ErrorCode = "AUTH_001"
	ErrCodeAccountLocked       ErrorCode = "AUTH_002"
	ErrCodeSessionInvalid      ErrorCode = "AUTH_003"
	ErrCodeSessionExpired      ErrorCode = "AUTH_004"
	ErrCodeResetTokenInvalid   ErrorCode = "AUTH_005"
	ErrCodePasswordPolicy      ErrorCode = "AUTH_006"
	ErrCodeEmailNotVerified    ErrorCode = "AUTH_007"
	ErrCodeResetNotRequestable ErrorCode = "AUTH_008"
)

// User module codes.
const (
	ErrCodeUserNotFound      ErrorCode = "USER_001"
	ErrCodeDuplicateEmail    ErrorCode = "USER_002"
	ErrCodeDuplicateUsername ErrorCode = "USER_003"
	ErrCodeUserDisabled      ErrorCode = "USER_004"
)

// Family-tree module codes.
const (
	ErrCodeTreeNotFound      ErrorCode = "TREE_001"
	ErrCodeDuplicateTreeName ErrorCode = "TREE_002"
	ErrCodeImportInProgress  ErrorCode = "TREE_003"
	ErrCodeTreeNotEmpty      ErrorCode = "TREE_004"
)

// GEDCOM codec codes.
const (
	ErrCodeGedcomParse       ErrorCode = "GED_001"
	ErrCodeRecordNotFound    ErrorCode = "GED_002"
	ErrCodeDuplicateXref     ErrorCode = "GED_003"
	ErrCodeXrefUnresolved    ErrorCode = "GED_004"
	ErrCodeRecordTypeInvalid ErrorCode = "GED_005"
	ErrCodeMergeConflict     ErrorCode = "GED_006"
	ErrCodeDateInvalid       ErrorCode = "GED_007"
)

// Media module codes.
const (
	ErrCodeMediaNotFound    ErrorCode = "MEDIA_001"
	ErrCodeMediaTooLarge    ErrorCode = "MEDIA_002"
	ErrCodeMediaTypeInvalid ErrorCode = "MEDIA_003"
)

// Report engine codes.
const (
	ErrCodeReportNotFound      ErrorCode = "RPT_001"
	ErrCodeReportTypeUnknown   ErrorCode = "RPT_002"
	ErrCodeReportFormatUnknown ErrorCode = "RPT_003"
	ErrCodeStyleNotFound       ErrorCode = "RPT_004"
	ErrCodeRenderFailed        ErrorCode = "RPT_005"
	ErrCodeReportPending       ErrorCode = "RPT_006"
)

// Search module codes.
const (
	ErrCodeSearchIndexFailed ErrorCode = "SEARCH_001"
	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_002"
	ErrCodeSearchUnavailable ErrorCode = "SEARCH_003"
)

// Kinship graph codes.
const (
	ErrCodeKinshipNoPath      ErrorCode = "KIN_001"
	ErrCodeKinshipGraphFailed ErrorCode = "KIN_002"
)

// Mail module codes.
const (
	ErrCodeMailSendFailed       ErrorCode = "MAIL_001"
	ErrCodeMailRecipientInvalid ErrorCode = "MAIL_002"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.  Codes not
// listed here default to 500 via HTTPStatusForCode.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeInvalidCredentials:  http.StatusUnauthorized,
	ErrCodeAccountLocked:       http.StatusLocked,
	ErrCodeSessionInvalid:      http.StatusUnauthorized,
	ErrCodeSessionExpired:      http.StatusUnauthorized,
	ErrCodeResetTokenInvalid:   http.StatusGone,
	ErrCodePasswordPolicy:      http.StatusUnprocessableEntity,
	ErrCodeEmailNotVerified:    http.StatusForbidden,
	ErrCodeResetNotRequestable: http.StatusForbidden,

	ErrCodeUserNotFound:      http.StatusNotFound,
	ErrCodeDuplicateEmail:    http.StatusConflict,
	ErrCodeDuplicateUsername: http.StatusConflict,
	ErrCodeUserDisabled:      http.StatusForbidden,

	ErrCodeTreeNotFound:      http.StatusNotFound,
	ErrCodeDuplicateTreeName: http.StatusConflict,
	ErrCodeImportInProgress:  http.StatusConflict,
	ErrCodeTreeNotEmpty:      http.StatusConflict,

	ErrCodeGedcomParse:       http.StatusUnprocessableEntity,
	ErrCodeRecordNotFound:    http.StatusNotFound,
	ErrCodeDuplicateXref:     http.StatusConflict,
	ErrCodeXrefUnresolved:    http.StatusUnprocessableEntity,
	ErrCodeRecordTypeInvalid: http.StatusBadRequest,
	ErrCodeMergeConflict:     http.StatusConflict,
	ErrCodeDateInvalid:       http.StatusUnprocessableEntity,

	ErrCodeMediaNotFound:    http.StatusNotFound,
	ErrCodeMediaTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeMediaTypeInvalid: http.StatusUnsupportedMediaType,

	ErrCodeReportNotFound:      http.StatusNotFound,
	ErrCodeReportTypeUnknown:   http.StatusBadRequest,
	ErrCodeReportFormatUnknown: http.StatusBadRequest,
	ErrCodeStyleNotFound:       http.StatusInternalServerError,
	ErrCodeRenderFailed:        http.StatusInternalServerError,
	ErrCodeReportPending:       http.StatusAccepted,

	ErrCodeSearchIndexFailed: http.StatusInternalServerError,
	ErrCodeSearchQueryFailed: http.StatusInternalServerError,
	ErrCodeSearchUnavailable: http.StatusServiceUnavailable,

	ErrCodeKinshipNoPath:      http.StatusNotFound,
	ErrCodeKinshipGraphFailed: http.StatusInternalServerError,

	ErrCodeMailSendFailed:       http.StatusInternalServerError,
	ErrCodeMailRecipientInvalid: http.StatusUnprocessableEntity,
}

// ErrorCodeMessage maps error codes to default user-facing messages, used
// when a handler has no more specific message to return.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeInvalidCredentials:  "invalid username or password",
	ErrCodeAccountLocked:       "account temporarily locked",
	ErrCodeSessionInvalid:      "session is invalid",
	ErrCodeSessionExpired:      "session has expired",
	ErrCodeResetTokenInvalid:   "password reset link is invalid or has expired",
	ErrCodePasswordPolicy:      "password does not meet the minimum requirements",
	ErrCodeEmailNotVerified:    "email address has not been verified",
	ErrCodeResetNotRequestable: "password reset is not available for this account",

	ErrCodeUserNotFound:      "user not found",
	ErrCodeDuplicateEmail:    "email address already in use",
	ErrCodeDuplicateUsername: "username already in use",
	ErrCodeUserDisabled:      "user account is disabled",

	ErrCodeTreeNotFound:      "family tree not found",
	ErrCodeDuplicateTreeName: "a family tree with this name already exists",
	ErrCodeImportInProgress:  "an import is already running for this tree",
	ErrCodeTreeNotEmpty:      "family tree still contains records",

	ErrCodeGedcomParse:       "GEDCOM data could not be parsed",
	ErrCodeRecordNotFound:    "record not found",
	ErrCodeDuplicateXref:     "record cross-reference already exists",
	ErrCodeXrefUnresolved:    "record references an unknown cross-reference",
	ErrCodeRecordTypeInvalid: "unsupported record type",
	ErrCodeMergeConflict:     "records have conflicting facts",
	ErrCodeDateInvalid:       "GEDCOM date could not be parsed",

	ErrCodeMediaNotFound:    "media object not found",
	ErrCodeMediaTooLarge:    "media file exceeds the size limit",
	ErrCodeMediaTypeInvalid: "media type is not allowed",

	ErrCodeReportNotFound:      "report not found",
	ErrCodeReportTypeUnknown:   "unknown report type",
	ErrCodeReportFormatUnknown: "unknown report output format",
	ErrCodeStyleNotFound:       "report style is not defined",
	ErrCodeRenderFailed:        "report rendering failed",
	ErrCodeReportPending:       "report is still being generated",

	ErrCodeSearchIndexFailed: "search indexing failed",
	ErrCodeSearchQueryFailed: "search query failed",
	ErrCodeSearchUnavailable: "search backend unavailable",

	ErrCodeKinshipNoPath:      "no relationship found between these individuals",
	ErrCodeKinshipGraphFailed: "relationship graph query failed",

	ErrCodeMailSendFailed:       "failed to send email",
	ErrCodeMailRecipientInvalid: "invalid email recipient",
}

// HTTPStatusForCode returns the HTTP status for a code, defaulting to 500.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for a code, falling back
// to the generic internal-error message.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return ErrorCodeMessage[ErrCodeInternal]
}

// ModuleForCode returns the module prefix of a code ("AUTH" for "AUTH_005").
// Codes without an underscore are returned unchanged.
func ModuleForCode(code ErrorCode) string {
	s := string(code)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

// IsClientError reports whether the code maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the code maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code) >= 500
}
