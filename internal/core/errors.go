package core

import (
	"errors"
	"fmt"
)

// Code классифицирует ошибку оркестратора для UI
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeBackendFailure     Code = "BACKEND_FAILURE"
	CodeNotConnected       Code = "NOT_CONNECTED"
	CodeNotVerified        Code = "NOT_VERIFIED"
	CodeSuperseded         Code = "SUPERSEDED"
	CodeExpired            Code = "EXPIRED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
)

// AppError - ошибка с кодом, пригодная для показа пользователю
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

// Is сравнивает по коду и тексту, чтобы обернутые копии совпадали с эталонными ошибками
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func newError(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap оборачивает причину в AppError
func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// CodeOf возвращает код первой AppError в цепочке
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

var (
	ErrEmptyMessage           = newError(CodeInvalidInput, "message is empty")
	ErrEmptyPayload           = newError(CodeInvalidInput, "payload is empty")
	ErrInvalidPayload         = newError(CodeInvalidInput, "payload rejected by backend")
	ErrNotConnected           = newError(CodeNotConnected, "peer is not connected")
	ErrNotVerified            = newError(CodeNotVerified, "fingerprint is not confirmed")
	ErrNotAcknowledged        = newError(CodeFailedPrecondition, "fingerprint match is not acknowledged")
	ErrFingerprintUnavailable = newError(CodeFailedPrecondition, "fingerprint is not available")
	ErrOfferSuperseded        = newError(CodeSuperseded, "offer generation superseded by a newer request")
	ErrOfferExpired           = newError(CodeExpired, "offer token expired")
	ErrOfferClosed            = newError(CodeFailedPrecondition, "offer screen is closed")
	ErrInvalidState           = newError(CodeFailedPrecondition, "operation not allowed in current state")
	ErrSendRejected           = newError(CodeBackendFailure, "backend rejected the message")
	ErrPeerLost               = newError(CodeNotConnected, "peer connection lost")
	ErrSessionClosed          = newError(CodeFailedPrecondition, "session is closed")
)
