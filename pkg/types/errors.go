package types

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeAuthInvalidCredentials ErrorCode = "AUTH_INVALID_CREDENTIALS"
	CodeAuthUserExists         ErrorCode = "AUTH_USER_EXISTS"
	CodeAuthUserNotConfirmed   ErrorCode = "AUTH_USER_NOT_CONFIRMED"
	CodeAuthInvalidCode        ErrorCode = "AUTH_INVALID_CODE"
	CodeAuthWeakPassword       ErrorCode = "AUTH_WEAK_PASSWORD"
	CodeAuthUnauthorized       ErrorCode = "AUTH_UNAUTHORIZED"
	CodeAuthSessionExpired     ErrorCode = "AUTH_SESSION_EXPIRED"
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeEligibility            ErrorCode = "ELIGIBILITY_ERROR"
	CodeInvalidState           ErrorCode = "INVALID_STATE"
	CodeTierSoldOut            ErrorCode = "TIER_SOLD_OUT"
	CodeNotFound               ErrorCode = "RESOURCE_NOT_FOUND"
	CodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	CodeConflict               ErrorCode = "CONFLICT"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeFileTooLarge           ErrorCode = "FILE_TOO_LARGE"
	CodeInvalidFileType        ErrorCode = "INVALID_FILE_TYPE"
	CodePayment                ErrorCode = "PAYMENT_ERROR"
	CodeNetwork                ErrorCode = "NETWORK_ERROR"
	CodeServer                 ErrorCode = "SERVER_ERROR"
)

var errorMessages = map[ErrorCode]string{
	CodeAuthInvalidCredentials: "Invalid email or password.",
	CodeAuthUserExists:         "An account with this email already exists.",
	CodeAuthUserNotConfirmed:   "Please confirm your email address before signing in.",
	CodeAuthInvalidCode:        "The code you entered is invalid or has expired.",
	CodeAuthWeakPassword:       "Password does not meet the security requirements.",
	CodeAuthUnauthorized:       "You need to sign in to do that.",
	CodeAuthSessionExpired:     "Your session has expired. Please sign in again.",
	CodeValidation:             "Please check your input and try again.",
	CodeEligibility:            "This project is not accepting backings from you right now.",
	CodeInvalidState:           "This action is not allowed in the current state.",
	CodeTierSoldOut:            "This reward tier is sold out.",
	CodeNotFound:               "The requested resource was not found.",
	CodePermissionDenied:       "You do not have permission to do that.",
	CodeConflict:               "The resource was changed by someone else. Please try again.",
	CodeRateLimited:            "Too many requests. Please slow down.",
	CodeFileTooLarge:           "The file is too large.",
	CodeInvalidFileType:        "This file type is not allowed.",
	CodePayment:                "The payment could not be processed.",
	CodeNetwork:                "Network error. Please check your connection and try again.",
	CodeServer:                 "Something went wrong on our end. Please try again later.",
}

// Message is the static user facing text for the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return errorMessages[CodeServer]
}

type Error struct {
	Code   ErrorCode
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Code.Message()
	}

	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(field, detail string) *Error {
	return &Error{Code: CodeValidation, Field: field, Detail: detail}
}

func NewEligibilityError(detail string) *Error {
	return &Error{Code: CodeEligibility, Detail: detail}
}

func NewInvalidStateError(detail string) *Error {
	return &Error{Code: CodeInvalidState, Detail: detail}
}

func NewPermissionError(detail string) *Error {
	return &Error{Code: CodePermissionDenied, Detail: detail}
}

var (
	ErrProjectNotFound    = &Error{Code: CodeNotFound, Detail: "project not found"}
	ErrRewardTierNotFound = &Error{Code: CodeNotFound, Detail: "reward tier not found"}
	ErrBackingNotFound    = &Error{Code: CodeNotFound, Detail: "backing not found"}
	ErrMilestoneNotFound  = &Error{Code: CodeNotFound, Detail: "milestone not found"}
	ErrUserNotFound       = &Error{Code: CodeNotFound, Detail: "user not found"}
	ErrEffectNotFound     = &Error{Code: CodeNotFound, Detail: "funding effect not found"}

	ErrTierSoldOut            = &Error{Code: CodeTierSoldOut, Detail: "reward tier is sold out"}
	ErrConcurrentModification = &Error{Code: CodeConflict, Detail: "concurrent modification"}
	ErrEffectAlreadyApplied   = &Error{Code: CodeConflict, Detail: "funding effect already applied"}
	ErrDuplicateKey           = &Error{Code: CodeConflict, Detail: "idempotency key already used"}
	ErrUnauthorized           = &Error{Code: CodeAuthUnauthorized}
)

// CodeOf resolves the error code carried anywhere in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}

	return CodeServer
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
