package errs

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind 错误分类，调用方按 Kind 决定是否重试以及如何展示
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindAccountState     Kind = "ACCOUNT_STATE"
	KindStorageFailure   Kind = "STORAGE_FAILURE"
)

// BusyMessage is what callers see for any StorageFailure; the cause is only logged.
const BusyMessage = "system busy, please try again later"

type AppError struct {
	Kind    Kind   `json:"kind"`
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

// Is matches on Kind and Message so sentinel errors work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// GRPCStatus lets grpc's status.FromError translate an AppError directly.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(GRPCCode(e.Kind), e.Message)
}

// Constructors
func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) error {
	return New(KindValidation, msg)
}

func PermissionDenied(msg string) error {
	return New(KindPermissionDenied, msg)
}

func RateLimited(msg string) error {
	return New(KindRateLimited, msg)
}

func AccountState(msg string) error {
	return New(KindAccountState, msg)
}

// Storage wraps an unexpected persistence error. The message shown to the
// caller is always BusyMessage.
func Storage(cause error) error {
	return Wrap(KindStorageFailure, BusyMessage, cause)
}

// KindOf returns the Kind of err, or StorageFailure for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorageFailure
}

// PublicMessage is the text that may be shown to an end user.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return BusyMessage
}

func Retryable(kind Kind) bool {
	return kind == KindRateLimited || kind == KindStorageFailure
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied, KindAccountState:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case KindValidation:
		return codes.InvalidArgument
	case KindPermissionDenied:
		return codes.PermissionDenied
	case KindRateLimited:
		return codes.ResourceExhausted
	case KindAccountState:
		return codes.FailedPrecondition
	default:
		return codes.Unavailable
	}
}
