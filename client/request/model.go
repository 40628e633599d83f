package request

import (
	"errors"
	"time"
)

const (
	// ChunkSize is the largest piece written to the socket in one call.
	ChunkSize = 2048
	// Base64ChunkSize is the raw size encoded per base64 body segment.
	// It is a multiple of 3 so no padding appears mid stream.
	Base64ChunkSize = 1026
	// DefaultPort is used when a request does not name one.
	DefaultPort = 443
	// WriteTimeout is the default send timeout.
	WriteTimeout = 30 * time.Second
	// AuthPlaceholder is substituted with the current token at send time.
	AuthPlaceholder = "<auth_token>"
)

var (
	ErrZeroWrite     = errors.New("socket accepted no bytes")
	ErrNoBody        = errors.New("request has no body")
	ErrInvalidRange  = errors.New("invalid upload range")
	ErrMultipleBody  = errors.New("more than one body source")
	ErrFileShortRead = errors.New("file read returned no data")
	ErrFileOpen      = errors.New("opening file body")
)

// Method is an HTTP request method.
type Method int

const (
	MethodUndefined Method = iota
	MethodPut
	MethodPost
	MethodGet
	MethodPatch
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodPut:
		return "PUT"
	case MethodPost:
		return "POST"
	case MethodGet:
		return "GET"
	case MethodPatch:
		return "PATCH"
	case MethodDelete:
		return "DELETE"
	}
	return ""
}

// HasBody reports whether the method sends a Content-Length and body.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// AuthType selects the Authorization scheme.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthAccessToken
	AuthIDToken
	AuthCustomToken
	AuthKey
)

func (a AuthType) scheme() string {
	switch a {
	case AuthAccessToken:
		return "Bearer "
	case AuthIDToken, AuthCustomToken:
		return "Firebase "
	}
	return "key="
}
