// Package errs provides the API error envelope: coded errors that map onto
// HTTP statuses plus request validation with translated field errors.
package errs

import "fmt"

// Code classifies an API failure independent of transport.
type Code int

const (
	OK Code = iota
	InvalidArgument
	Unauthenticated
	NotFound
	ResourceExhausted
	Internal
)

var codeNames = map[Code]string{
	OK:                "ok",
	InvalidArgument:   "invalid_argument",
	Unauthenticated:   "unauthenticated",
	NotFound:          "not_found",
	ResourceExhausted: "resource_exhausted",
	Internal:          "internal",
}

func (c Code) String() string {
	name, ok := codeNames[c]
	if !ok {
		return "unknown"
	}
	return name
}

// Error is the envelope every failed request is rendered from.
type Error struct {
	Code    Code              `json:"-"`
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// New creates an Error from a code and an underlying error. Validation
// failures carry their per-field details into the envelope.
func New(code Code, err error) *Error {
	e := &Error{Code: code, Message: err.Error()}

	var fields FieldErrors
	if asFieldErrors(err, &fields) {
		e.Message = "validation failed"
		e.Fields = fields.Fields()
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

func (e *Error) Error() string { return e.Message }

// HTTPStatus returns the status code the error renders with.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case OK:
		return 200
	case InvalidArgument:
		return 400
	case Unauthenticated:
		return 401
	case NotFound:
		return 404
	case ResourceExhausted:
		return 429
	default:
		return 500
	}
}
