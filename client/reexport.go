package client

import (
	"github.com/adamwoolhether/fbclient/client/file"
	"github.com/adamwoolhether/fbclient/client/request"
	"github.com/adamwoolhether/fbclient/client/result"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from the sub-packages.
// ————————————————————————————————————————————————————————————————————

type (
	// AsyncResult is the caller visible state of a task.
	AsyncResult = result.AsyncResult

	// Error is the coded error recorded on a failed task.
	Error = result.Error

	// Callback is invoked with the result after each change.
	Callback = result.Callback

	// Method is the HTTP method of a request.
	Method = request.Method

	// AuthType selects the Authorization scheme of a [TokenProvider].
	AuthType = request.AuthType

	// FileConfig names an upload source or download destination.
	FileConfig = file.Config
)

// ————————————————————————————————————————————————————————————————————
// Methods and auth schemes
// ————————————————————————————————————————————————————————————————————

const (
	MethodPut    = request.MethodPut
	MethodPost   = request.MethodPost
	MethodGet    = request.MethodGet
	MethodPatch  = request.MethodPatch
	MethodDelete = request.MethodDelete

	AuthNone        = request.AuthNone
	AuthAccessToken = request.AuthAccessToken
	AuthIDToken     = request.AuthIDToken
	AuthCustomToken = request.AuthCustomToken
	AuthKey         = request.AuthKey
)

// ————————————————————————————————————————————————————————————————————
// Error categories
// ————————————————————————————————————————————————————————————————————

var (
	// ErrTCP marks connect, send and receive failures.
	ErrTCP = result.ErrTCP

	// ErrProtocol marks HTTP error statuses.
	ErrProtocol = result.ErrProtocol

	// ErrResource marks file and firmware failures.
	ErrResource = result.ErrResource

	// ErrAuth marks token failures.
	ErrAuth = result.ErrAuth

	// ErrApplication marks stream, cancellation and configuration failures.
	ErrApplication = result.ErrApplication
)
