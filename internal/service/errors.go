package service

import (
	"errors"

	"github.com/SinaHo/phone-referral-auth/internal/phone"
)

// Kind classifies an Error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindNotFound
	KindConflict
	KindPermissionDenied
	KindUnauthenticated
	KindTooManyRequests
)

// Error is a caller-facing failure with a descriptive message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrInvalidPhone = newError(KindValidation, phone.ErrInvalid.Error())
	ErrEmptyCode    = newError(KindValidation, "verification code is missing")
	ErrWrongCode    = newError(KindBadRequest, "invalid verification code")
	ErrCodeExpired  = newError(KindBadRequest, "verification code expired, request a new one")

	ErrUserNotFound         = newError(KindNotFound, "user not found")
	ErrProfileNotFound      = newError(KindNotFound, "profile not found")
	ErrReferralCodeNotFound = newError(KindNotFound, "profile with this referral code not found")
	ErrInvalidPage          = newError(KindNotFound, "invalid page")

	ErrSelfReferral             = newError(KindConflict, "you cannot use your own referral code")
	ErrReferralAlreadyActivated = newError(KindConflict, "you have already activated this referral code")
	ErrOtherReferralActivated   = newError(KindConflict, "you have already activated another referral code")
	ErrPhoneTaken               = newError(KindConflict, "phone number already registered")

	ErrPermissionDenied = newError(KindPermissionDenied, "you cannot view or modify other users' profiles")
	ErrAdminOnly        = newError(KindPermissionDenied, "you do not have permission to perform this action")
	ErrUnauthenticated  = newError(KindUnauthenticated, "authentication credentials were not provided")

	ErrNothingToUpdate = newError(KindValidation, "no updatable fields provided")
	ErrTooManyAttempts = newError(KindTooManyRequests, "too many attempts, try again later")
)

// KindOf returns the Kind of err, KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
