package result

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories. Every [Error] unwraps to exactly one of these.
var (
	ErrTCP         = errors.New("tcp error")
	ErrProtocol    = errors.New("http error")
	ErrResource    = errors.New("resource error")
	ErrAuth        = errors.New("auth error")
	ErrApplication = errors.New("application error")
)

// TCP layer codes.
const (
	CodeTCPConnectionRefused = -1
	CodeTCPSendFailed        = -2
	CodeTCPReceiveTimeout    = -3
	CodeTCPDisconnected      = -4
)

// Resource, auth and application codes.
const (
	CodeFileOpen                = -103
	CodeFileRead                = -104
	CodeFileWrite               = -105
	CodeUnauthenticated         = -106
	CodeTokenParsePK            = -110
	CodeTokenSign               = -111
	CodeOTATooLowSpace          = -112
	CodeOTAWriteFailed          = -113
	CodeOTAEndFailed            = -114
	CodeStreamTimeout           = -115
	CodeStreamAuthRevoked       = -116
	CodeAppNotAssigned          = -117
	CodeOperationCancelled      = -118
	CodeTimeNotSet              = -119
	CodeJWTCreationRequired     = -120
	CodeJWTCreationTimeout      = -121
	CodeInvalidDatabaseSecret   = -122
	CodeOTAStorageUninitialized = -123
	CodeInvalidDatabaseURL      = -124
	CodeInvalidHost             = -125
)

var messages = map[int]string{
	CodeTCPConnectionRefused:    "TCP connection failed",
	CodeTCPSendFailed:           "TCP send failed",
	CodeTCPReceiveTimeout:       "TCP receive timed out",
	CodeTCPDisconnected:         "TCP disconnected",
	CodeFileOpen:                "error opening file",
	CodeFileRead:                "error reading file",
	CodeFileWrite:               "error writing file",
	CodeUnauthenticated:         "unauthenticate",
	CodeTokenParsePK:            "token signing failed (private key parsing)",
	CodeTokenSign:               "token signing failed",
	CodeOTATooLowSpace:          "firmware write failed (space too low)",
	CodeOTAWriteFailed:          "firmware write failed",
	CodeOTAEndFailed:            "firmware end failed",
	CodeStreamTimeout:           "stream connection timed out",
	CodeStreamAuthRevoked:       "auth revoked",
	CodeAppNotAssigned:          "app was not assigned",
	CodeOperationCancelled:      "operation was cancelled",
	CodeTimeNotSet:              "time was not set or not valid",
	CodeJWTCreationRequired:     "JWT token creation required",
	CodeJWTCreationTimeout:      "JWT token creation timed out",
	CodeInvalidDatabaseSecret:   "invalid database secret",
	CodeOTAStorageUninitialized: "OTA storage was not initialized",
	CodeInvalidDatabaseURL:      "invalid database URL",
	CodeInvalidHost:             "invalid host",
}

// Error is the error recorded on a task: a numeric code, a human
// readable message and the category it belongs to.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s (%d)", e.Err, e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an [Error] for one of the predefined codes, filling in
// the canned message and category.
func NewError(code int) *Error {
	return &Error{Code: code, Message: messages[code], Err: category(code)}
}

// HTTPError builds a protocol [Error] for a response status of 400 or
// above. The payload is used as the message when no canned one exists.
func HTTPError(status int, payload string) *Error {
	e := &Error{Code: status, Err: ErrProtocol}
	switch {
	case status == http.StatusPreconditionFailed:
		e.Message = "precondition failed (ETag does not match)"
	case status == http.StatusUnauthorized:
		e.Message = "unauthorized"
	case payload != "":
		e.Message = payload
	default:
		e.Message = fmt.Sprintf("HTTP Status %d", status)
	}
	return e
}

func category(code int) error {
	switch {
	case code >= CodeTCPDisconnected && code <= CodeTCPConnectionRefused:
		return ErrTCP
	case code > 0:
		return ErrProtocol
	}

	switch code {
	case CodeFileOpen, CodeFileRead, CodeFileWrite,
		CodeOTATooLowSpace, CodeOTAWriteFailed, CodeOTAEndFailed, CodeOTAStorageUninitialized:
		return ErrResource
	case CodeUnauthenticated, CodeTokenParsePK, CodeTokenSign, CodeTimeNotSet,
		CodeJWTCreationRequired, CodeJWTCreationTimeout, CodeInvalidDatabaseSecret:
		return ErrAuth
	default:
		return ErrApplication
	}
}
