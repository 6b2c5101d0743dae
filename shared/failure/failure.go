package failure

import (
	"errors"
	"net/http"
)

// Failure is a wrapper for error messages and codes using standard HTTP response codes.
// Kind distinguishes error families that share an HTTP code (e.g. a slot conflict
// versus a lost optimistic write, both 409) so callers can branch on the cause.
type Failure struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

const (
	KindValidation             = "validation"
	KindConflict               = "conflict"
	KindReservationExpired     = "reservation_expired"
	KindInvalidState           = "invalid_state"
	KindConcurrentModification = "concurrent_modification"
)

var InvalidPageParam = &Failure{Code: http.StatusBadRequest, Kind: KindValidation, Message: "invalid page parameter"}
var InvalidLimitParam = &Failure{Code: http.StatusBadRequest, Kind: KindValidation, Message: "invalid limit parameter"}
var ForbiddenError = &Failure{Code: http.StatusForbidden, Message: "You don't have the required permissions"}
var ResourceRestrictedError = &Failure{Code: http.StatusForbidden, Message: "You don't have permission to access this resource"}

// Error returns the error code and message in a formatted string.
func (e *Failure) Error() string {
	return e.Message
}

// BadRequest returns a new Failure with code for bad requests.
func BadRequest(err error) error {
	if err != nil {
		return &Failure{
			Code:    http.StatusBadRequest,
			Kind:    KindValidation,
			Message: err.Error(),
		}
	}

	return nil
}

// BadRequestFromString returns a new Failure with code for bad requests with message set from string.
func BadRequestFromString(msg string) error {
	return &Failure{
		Code:    http.StatusBadRequest,
		Kind:    KindValidation,
		Message: msg,
	}
}

// Unauthorized returns a new Failure with code for unauthorized requests.
func Unauthorized(msg string) error {
	return &Failure{
		Code:    http.StatusUnauthorized,
		Message: msg,
	}
}

// InternalError returns a new Failure with code for internal error and message derived from an error interface.
func InternalError(err error) error {
	if err != nil {
		return &Failure{
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
		}
	}

	return nil
}

// NotFound returns a new Failure with code for entity not found.
func NotFound(entityName string) error {
	return &Failure{
		Code:    http.StatusNotFound,
		Message: entityName,
	}
}

// Conflict returns a new Failure for an unavailable slot. The caller can pick
// another interval or charger; this is never a retry-with-fresh-read situation.
func Conflict(message string) error {
	return &Failure{
		Code:    http.StatusConflict,
		Kind:    KindConflict,
		Message: message,
	}
}

// ReservationExpired returns a new Failure for a lapsed hold window. The
// reservation must be created again from scratch.
func ReservationExpired(message string) error {
	return &Failure{
		Code:    http.StatusGone,
		Kind:    KindReservationExpired,
		Message: message,
	}
}

// InvalidState returns a new Failure for a transition that is illegal from the
// current persisted status, which usually means the client acted on a stale view.
func InvalidState(message string) error {
	return &Failure{
		Code:    http.StatusUnprocessableEntity,
		Kind:    KindInvalidState,
		Message: message,
	}
}

// ConcurrentModification returns a new Failure for an optimistic write that lost
// the race to another writer. The caller should re-fetch and retry.
func ConcurrentModification(message string) error {
	return &Failure{
		Code:    http.StatusConflict,
		Kind:    KindConcurrentModification,
		Message: message,
	}
}

func Forbidden(msg string) error {
	return &Failure{
		Code:    http.StatusForbidden,
		Message: msg,
	}
}

// GetCode returns the error code of an error interface.
func GetCode(err error) int {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail.Code
	}

	return http.StatusInternalServerError
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind string) bool {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail.Kind == kind
	}

	return false
}

func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

func IsReservationExpired(err error) bool {
	return IsKind(err, KindReservationExpired)
}

func IsInvalidState(err error) bool {
	return IsKind(err, KindInvalidState)
}

func IsConcurrentModification(err error) bool {
	return IsKind(err, KindConcurrentModification)
}
