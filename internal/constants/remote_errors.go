package constants

// Remote CRM error codes
// These constants classify failures returned by the CRM client

// Transport and availability
const (
	ErrCodeNetworkError      = "NETWORK_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeRemoteUnavailable = "REMOTE_UNAVAILABLE"
)

// Request rejected by the remote
const (
	ErrCodeInvalidAPIKey    = "INVALID_API_KEY"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// Local handling
const (
	ErrCodeDecodeFailed        = "DECODE_FAILED"
	ErrCodeTypeConversionError = "TYPE_CONVERSION_ERROR"
	ErrCodeFieldNotMapped      = "FIELD_NOT_MAPPED"
	ErrCodePipelineNotFound    = "PIPELINE_NOT_FOUND"
)

// RemoteErrorMessages maps codes to the text shown in run summaries
var RemoteErrorMessages = map[string]string{
	ErrCodeNetworkError:      "Unable to reach the CRM. Please check connectivity",
	ErrCodeTimeout:           "The CRM did not answer in time",
	ErrCodeRateLimited:       "CRM rate limit exceeded",
	ErrCodeRemoteUnavailable: "The CRM returned a server error",

	ErrCodeInvalidAPIKey:    "The CRM API key is invalid or has been revoked",
	ErrCodeForbidden:        "The CRM API key is not allowed to access this location",
	ErrCodeNotFound:         "The requested CRM record does not exist",
	ErrCodeBadRequest:       "The CRM rejected the request",
	ErrCodeValidationFailed: "The CRM rejected the record payload",

	ErrCodeDecodeFailed:        "The CRM response could not be decoded",
	ErrCodeTypeConversionError: "Unable to convert the field value to the expected type",
	ErrCodeFieldNotMapped:      "The local column has no remote field mapping",
	ErrCodePipelineNotFound:    "The configured pipeline was not found in the CRM",
}

// GetErrorMessage returns the human-readable message for an error code
func GetErrorMessage(code string) string {
	if msg, exists := RemoteErrorMessages[code]; exists {
		return msg
	}
	return "An unknown error occurred"
}
