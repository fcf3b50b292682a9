package adapter

import "errors"

var (
	// ErrTransport indicates the request never produced a usable response
	// (network failure, timeout, malformed body).
	ErrTransport = errors.New("transport failure")
	// ErrBadRequest indicates the server rejected the request as malformed.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized indicates a missing, invalid or unentitled API key.
	ErrUnauthorized = errors.New("client unauthorized")
	// ErrNotFound indicates an unknown endpoint or resource.
	ErrNotFound = errors.New("not found")
	// ErrTooManyRequests indicates the server is throttling this client.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrServerError indicates a 5xx response.
	ErrServerError = errors.New("server error")
)
