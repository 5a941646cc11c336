package vl

import "net/http"

// ResponseStatus classifies the outcome of a localization request.
type ResponseStatus int

// The order matches the status codes exchanged with the native core.
const (
	StatusSuccess ResponseStatus = iota
	StatusServerNotFound
	StatusUnauthorized
	StatusNetworkConnectionError
	StatusFailed
	StatusInaccurate
	StatusExpired
	StatusRotationError
	StatusTranslationError
	StatusOutOfServiceArea
	StatusBadRequestServer
	StatusBadRequestClient
	StatusInternalServerError
	StatusUnknownError
)

var statusNames = map[ResponseStatus]string{
	StatusSuccess:                "Success",
	StatusServerNotFound:         "ServerNotFound",
	StatusUnauthorized:           "Unauthorized",
	StatusNetworkConnectionError: "NetworkConnectionError",
	StatusFailed:                 "Failed",
	StatusInaccurate:             "Inaccurate",
	StatusExpired:                "Expired",
	StatusRotationError:          "RotationError",
	StatusTranslationError:       "TranslationError",
	StatusOutOfServiceArea:       "OutOfServiceArea",
	StatusBadRequestServer:       "BadRequestServer",
	StatusBadRequestClient:       "BadRequestClient",
	StatusInternalServerError:    "InternalServerError",
	StatusUnknownError:           "UnknownError",
}

func (s ResponseStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UnknownError"
}

// StatusFromHTTPCode maps a non-success HTTP status code to a ResponseStatus. A zero code means
// no response was received.
func StatusFromHTTPCode(code int) ResponseStatus {
	switch code {
	case http.StatusBadRequest:
		return StatusBadRequestServer
	case http.StatusInternalServerError:
		return StatusInternalServerError
	default:
		return StatusUnknownError
	}
}

// IsSuccessCode reports whether an HTTP status code is in the 2xx range.
func IsSuccessCode(code int) bool {
	return code >= 200 && code < 300
}
