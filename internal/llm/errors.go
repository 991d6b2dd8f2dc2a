package llm

import "fmt"

// ErrorKind klassifiziert Fehler des KI-Gateways
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindEmptyResponse ErrorKind = "empty_response"
	KindParse         ErrorKind = "parse_error"
	KindProvider      ErrorKind = "provider_error"
)

// Error ist ein Gateway-Fehler mit Art und Operation
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is vergleicht nur die Art, damit errors.Is(err, ErrParse) für jede Operation greift
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Kind == e.Kind
}

// Vergleichswerte für errors.Is
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrEmptyResponse = &Error{Kind: KindEmptyResponse}
	ErrParse         = &Error{Kind: KindParse}
	ErrProvider      = &Error{Kind: KindProvider}
)

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
