package domain

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "UNKNOWN"
	CodeNotFound   Code = "NOT_FOUND"
	CodeValidation Code = "VALIDATION"
	CodeNetwork    Code = "NETWORK"
	CodeServer     Code = "SERVER"
)

// AppError is the uniform error shape the gateway and the devserver speak.
// Code drives programmatic branching; Message is for display.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func NewError(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return NewError(CodeNotFound, msg)
}

func Invalid(msg string) error {
	return NewError(CodeValidation, msg)
}

func NetworkFailure(cause error) error {
	return WrapError(CodeNetwork, "transport failure", cause)
}

func ServerFailure(msg string) error {
	return NewError(CodeServer, msg)
}

// ErrCode extracts the taxonomy code from any error chain.
func ErrCode(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

func IsNotFound(err error) bool   { return ErrCode(err) == CodeNotFound }
func IsValidation(err error) bool { return ErrCode(err) == CodeValidation }
func IsNetwork(err error) bool    { return ErrCode(err) == CodeNetwork }
func IsServer(err error) bool     { return ErrCode(err) == CodeServer }

var (
	ErrUserNotFound    = NotFound("user not found")
	ErrMessageNotFound = NotFound("message not found")
	ErrUsernameTaken   = Invalid("username is already taken")
	ErrEmptyContent    = Invalid("message content cannot be empty")
	ErrContentTooLong  = Invalid("message content exceeds 500 characters")
	ErrInvalidUsername = Invalid("username must be 3-30 chars, letters, numbers and underscores only")
	ErrInvalidPin      = Invalid("pin must be exactly 4 digits")
	ErrInvalidReaction = Invalid("unknown reaction type")
	ErrReplyExists     = Invalid("message already has a reply")
	ErrNotOwner        = Invalid("only the inbox owner may do that")
	ErrSessionExpired  = NotFound("session has expired")
)
