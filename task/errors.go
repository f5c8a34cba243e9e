package task

import (
	"errors"

	"github.com/DF-AutoPilot/droneforce-contract/geo"
)

// Kind groups rejections by how the caller can fix them.
type Kind string

const (
	KindValidation    Kind = "validation"    // malformed input
	KindAuthorization Kind = "authorization" // wrong signer for the record
	KindState         Kind = "state"         // record status does not permit the operation
)

// Code is a stable error name.
type Code string

// Error is a rejected operation. Every value is a caller-fixable condition;
// none of them indicate an internal fault.
type Error struct {
	Code   Code
	Kind   Kind
	Number uint32
	msg    string
	cause  error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.cause }

// Numbers start at 6000, the first custom error number on Solana programs.
var (
	ErrDescriptionTooLong    = &Error{Code: "DescriptionTooLong", Kind: KindValidation, Number: 6000, msg: "description is too long"}
	ErrArweaveTxIdTooLong    = &Error{Code: "ArweaveTxIdTooLong", Kind: KindValidation, Number: 6001, msg: "arweave transaction id is too long"}
	ErrInvalidTaskStatus     = &Error{Code: "InvalidTaskStatus", Kind: KindState, Number: 6002, msg: "invalid task status for this operation"}
	ErrUnauthorizedOperator  = &Error{Code: "UnauthorizedOperator", Kind: KindAuthorization, Number: 6003, msg: "unauthorized operator"}
	ErrInvalidLatitude       = &Error{Code: "InvalidLatitude", Kind: KindValidation, Number: 6004, msg: "invalid latitude value", cause: geo.ErrInvalidLatitude}
	ErrInvalidLongitude      = &Error{Code: "InvalidLongitude", Kind: KindValidation, Number: 6005, msg: "invalid longitude value", cause: geo.ErrInvalidLongitude}
	ErrUnauthorizedValidator = &Error{Code: "UnauthorizedValidator", Kind: KindAuthorization, Number: 6006, msg: "unauthorized validator"}
	ErrAlreadyVerified       = &Error{Code: "AlreadyVerified", Kind: KindState, Number: 6007, msg: "task has already been verified"}
)

var allErrors = []*Error{
	ErrDescriptionTooLong,
	ErrArweaveTxIdTooLong,
	ErrInvalidTaskStatus,
	ErrUnauthorizedOperator,
	ErrInvalidLatitude,
	ErrInvalidLongitude,
	ErrUnauthorizedValidator,
	ErrAlreadyVerified,
}

// ErrorByCode looks up a sentinel by its stable code.
func ErrorByCode(code Code) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// AsError extracts the rejection carried by err, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// fromGeo maps codec errors onto the task taxonomy.
func fromGeo(err error) error {
	switch {
	case errors.Is(err, geo.ErrInvalidLatitude):
		return ErrInvalidLatitude
	case errors.Is(err, geo.ErrInvalidLongitude):
		return ErrInvalidLongitude
	default:
		return err
	}
}
