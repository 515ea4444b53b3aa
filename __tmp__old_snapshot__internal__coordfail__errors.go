// Package coordfail defines the coordinator's error kinds and their
// stable wire codes.
package coordfail

import "fmt"

// Code is the stable numeric code propagated over the wire for a Kind.
type Code uint32

const (
	CodeRetry Code = iota + 1
	CodeNoSuchServer
	CodeTableDoesNotExist
	CodeUnimplementedRequest
	CodeTransportFailure
	CodeFatal
)

// Kind names one of the coordinator's error categories.
type Kind int

const (
	Retry Kind = iota
	NoSuchServer
	TableDoesNotExist
	UnimplementedRequest
	TransportFailure
	Fatal
)

var codes = map[Kind]Code{
	Retry:                CodeRetry,
	NoSuchServer:         CodeNoSuchServer,
	TableDoesNotExist:    CodeTableDoesNotExist,
	UnimplementedRequest: CodeUnimplementedRequest,
	TransportFailure:     CodeTransportFailure,
	Fatal:                CodeFatal,
}

var names = map[Kind]string{
	Retry:                "Retry",
	NoSuchServer:         "NoSuchServer",
	TableDoesNotExist:    "TableDoesNotExist",
	UnimplementedRequest: "UnimplementedRequest",
	TransportFailure:     "TransportFailure",
	Fatal:                "Fatal",
}

// Error is the typed error every coordinator-facing operation returns.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", names[e.Kind], e.Msg)
}

// Code returns the stable numeric code for wire propagation.
func (e *Error) Code() Code {
	return codes[e.Kind]
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func IsKind(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}


