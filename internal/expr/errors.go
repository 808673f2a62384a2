package expr

import (
	"errors"
	"fmt"
)

// Arithmetic fault sentinels. The evaluator wraps these with the operands
// involved; callers test with errors.Is.
var (
	// ErrDivisionByZero is returned when a divisor's magnitude is below
	// the representable floor (1e-300).
	ErrDivisionByZero = errors.New("division by zero")

	// ErrDomain is returned for operations outside the real domain, such
	// as a negative base raised to a non-integer exponent.
	ErrDomain = errors.New("domain error")

	// ErrNumericOverflow is returned when an operation produces NaN or an
	// infinity; poisoned values never propagate.
	ErrNumericOverflow = errors.New("numeric overflow")
)

// ParseError reports a malformed expression. Offset is the byte position of
// the offending token in the source string.
type ParseError struct {
	Msg    string
	Token  string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("parse error at offset %d near %q: %s", e.Offset, e.Token, e.Msg)
}

// UndefinedNameError reports a name that no scope frame resolves.
type UndefinedNameError struct {
	Name string
}

func (e *UndefinedNameError) Error() string {
	return fmt.Sprintf("undefined name %q", e.Name)
}

// ReservedNameError reports an attempt to bind a reserved identifier.
type ReservedNameError struct {
	Name string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("cannot assign to reserved name %q", e.Name)
}

// RandomArgumentError reports $random arguments that violate its contract:
// arity 3, min < max, min <= mean <= max.
type RandomArgumentError struct {
	Reason string
}

func (e *RandomArgumentError) Error() string {
	return "invalid $random arguments: " + e.Reason
}

// UnknownCallError reports a sigil call other than $random.
type UnknownCallError struct {
	Func string
}

func (e *UnknownCallError) Error() string {
	return fmt.Sprintf("unknown builtin $%s", e.Func)
}
