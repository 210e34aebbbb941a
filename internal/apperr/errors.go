package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kind classifies an economy failure.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindInsufficientMaterial  Kind = "insufficient_materials"
	KindInsufficientLiquidity Kind = "insufficient_counterparty_liquidity"
	KindNotFound              Kind = "not_found"
	KindUnauthorized          Kind = "unauthorized"
	KindInvalidState          Kind = "invalid_state"
	KindExpired               Kind = "expired"
)

var (
	ErrValidation            = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrInsufficientMaterials = &Error{Kind: KindInsufficientMaterial, Message: "insufficient materials"}
	ErrInsufficientLiquidity = &Error{Kind: KindInsufficientLiquidity, Message: "counterparty cannot cover"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidState          = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrExpired               = &Error{Kind: KindExpired, Message: "expired"}
)

// Error is a structured failure surfaced to callers. Have/Need carry the
// shortfall for balance checks.
type Error struct {
	Kind    Kind
	Message string
	Have    *decimal.Decimal
	Need    *decimal.Decimal
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Have != nil && e.Need != nil {
		msg = fmt.Sprintf("%s (have %s, need %s)", msg, e.Have.String(), e.Need.String())
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func shortfall(kind Kind, have, need decimal.Decimal, format string, args ...any) *Error {
	e := newf(kind, format, args...)
	e.Have = &have
	e.Need = &need
	return e
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, format, args...)
}

func Expired(format string, args ...any) *Error {
	return newf(KindExpired, format, args...)
}

func InsufficientFunds(wallet string, have, need decimal.Decimal) *Error {
	return shortfall(KindInsufficientFunds, have, need, "insufficient funds in %s", wallet)
}

func InsufficientLiquidity(wallet string, have, need decimal.Decimal) *Error {
	return shortfall(KindInsufficientLiquidity, have, need, "%s cannot cover the payment", wallet)
}

func InsufficientMaterials(owner, material string, have, need int64) *Error {
	return shortfall(KindInsufficientMaterial, decimal.NewFromInt(have), decimal.NewFromInt(need),
		"%s does not hold enough %s", owner, material)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientFunds, KindInsufficientMaterial:
		return http.StatusPaymentRequired
	case KindInsufficientLiquidity, KindInvalidState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
