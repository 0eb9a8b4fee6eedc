// Package mockerr defines the closed set of failures the mock server can
// report and how each one maps onto an HTTP response.
package mockerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	// Other is any error that did not originate in this module.
	Other Kind = iota
	// ConfigRead means the configuration document could not be read.
	ConfigRead
	// ConfigParse means the configuration document is malformed or invalid.
	ConfigParse
	// FileRead means a response file is missing, unreadable or outside the root.
	FileRead
	// RouteNotFound means no enabled rule matched the request.
	RouteNotFound
	// ImportFailure means the rule store rejected an import.
	ImportFailure
)

func (k Kind) String() string {
	switch k {
	case ConfigRead:
		return "config read error"
	case ConfigParse:
		return "config parse error"
	case FileRead:
		return "file read error"
	case RouteNotFound:
		return "route not found"
	case ImportFailure:
		return "import failure"
	default:
		return "error"
	}
}

// Error is the error type returned by the resolution engine.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "importer.Import"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// NotFound is the error returned when no rule matches method and path.
func NotFound(method, path string) *Error {
	return &Error{
		Kind: RouteNotFound,
		Op:   "routing.Match",
		Msg:  fmt.Sprintf("no rule for %s %s", method, path),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code and plain-text body the mock
// endpoint answers with.
func HTTPStatus(err error) (int, string) {
	switch KindOf(err) {
	case RouteNotFound:
		return http.StatusNotFound, "Route not found"
	case FileRead:
		var e *Error
		errors.As(err, &e)
		cause := e.Msg
		if e.Err != nil {
			cause = e.Err.Error()
		}
		return http.StatusInternalServerError, "Response file error : " + cause
	case ConfigRead, ConfigParse, ImportFailure:
		return http.StatusInternalServerError, "Configuration error : " + err.Error()
	default:
		return http.StatusInternalServerError, "Internal error : " + err.Error()
	}
}
