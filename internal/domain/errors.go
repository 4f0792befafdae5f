package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the engine can report. The set is closed.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindProductNotFound
	KindPrescriptionNotFound
	KindPrescriptionRequired
	KindInsufficientStock
	KindHoldNotFound
	KindNotFound
	KindInvalidStatus
	KindStorageConflict
)

var kindCodes = map[Kind]string{
	KindInternal:             "INTERNAL",
	KindInvalidInput:         "INVALID_INPUT",
	KindProductNotFound:      "PRODUCT_NOT_FOUND",
	KindPrescriptionNotFound: "PRESCRIPTION_NOT_FOUND",
	KindPrescriptionRequired: "PRESCRIPTION_REQUIRED",
	KindInsufficientStock:    "INSUFFICIENT_STOCK",
	KindHoldNotFound:         "HOLD_NOT_FOUND",
	KindNotFound:             "NOT_FOUND",
	KindInvalidStatus:        "INVALID_STATUS",
	KindStorageConflict:      "STORAGE_CONFLICT",
}

func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against
// the package sentinels regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var defaultMessages = map[Kind]string{
	KindInternal:             "internal error",
	KindInvalidInput:         "invalid input",
	KindProductNotFound:      "product not found",
	KindPrescriptionNotFound: "prescription not found",
	KindPrescriptionRequired: "prescription required",
	KindInsufficientStock:    "insufficient stock",
	KindHoldNotFound:         "held sale not found",
	KindNotFound:             "not found",
	KindInvalidStatus:        "invalid status",
	KindStorageConflict:      "storage conflict",
}

var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrProductNotFound      = &Error{Kind: KindProductNotFound}
	ErrPrescriptionNotFound = &Error{Kind: KindPrescriptionNotFound}
	ErrPrescriptionRequired = &Error{Kind: KindPrescriptionRequired}
	ErrInsufficientStock    = &Error{Kind: KindInsufficientStock}
	ErrHoldNotFound         = &Error{Kind: KindHoldNotFound}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidStatus        = &Error{Kind: KindInvalidStatus}
	ErrStorageConflict      = &Error{Kind: KindStorageConflict}
)

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to a lower-level error, keeping it in the chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
