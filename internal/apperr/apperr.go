// Package apperr defines the business error taxonomy shared by every
// component. Each error carries a stable machine code plus a human message.
package apperr

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

type Code string

const (
	CodeValidation          Code = "validation_error"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeRuleNotFound        Code = "rule_not_found"
	CodePriceUnavailable    Code = "price_unavailable"
	CodeConflict            Code = "conflicting_pending_state"
	CodeTradingPaused       Code = "trading_paused"
	CodeNotFound            Code = "not_found"
	CodeAlreadyProcessed    Code = "already_processed"
)

type Error struct {
	Code     Code
	Message  string
	Shortage *decimal.Decimal
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation          = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrRuleNotFound        = &Error{Code: CodeRuleNotFound, Message: "no commission rule matches"}
	ErrPriceUnavailable    = &Error{Code: CodePriceUnavailable, Message: "price unavailable"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "an open order already exists"}
	ErrTradingPaused       = &Error{Code: CodeTradingPaused, Message: "trading is paused"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyProcessed    = &Error{Code: CodeAlreadyProcessed, Message: "already processed"}
)

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Validation(msg string) *Error {
	return New(CodeValidation, msg)
}

func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

func InsufficientBalance(shortage decimal.Decimal) *Error {
	return &Error{Code: CodeInsufficientBalance, Message: "insufficient balance", Shortage: &shortage}
}

func TradingPaused(msg string) *Error {
	if msg == "" {
		msg = "trading is paused"
	}
	return New(CodeTradingPaused, msg)
}

// CodeOf returns the code of the first *Error in the chain, or "" for
// infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ShortageOf returns the shortage attached to an insufficient balance error.
func ShortageOf(err error) (decimal.Decimal, bool) {
	var e *Error
	if errors.As(err, &e) && e.Shortage != nil {
		return *e.Shortage, true
	}
	return decimal.Zero, false
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case CodeRuleNotFound, CodePriceUnavailable:
		return http.StatusServiceUnavailable
	case CodeConflict, CodeAlreadyProcessed:
		return http.StatusConflict
	case CodeTradingPaused:
		return http.StatusLocked
	case CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
