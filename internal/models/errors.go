package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the settlement error taxonomy. Handlers map these to
// HTTP statuses; nothing below the handler layer knows about HTTP.
var (
	ErrInvalidSignature   = errors.New("gateway signature verification failed")
	ErrUnknownTxnRef      = errors.New("unknown gateway transaction reference")
	ErrOwnerHasPayment    = errors.New("owner already has an active payment")
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrUnsupportedGateway = errors.New("unsupported payment gateway")
	ErrInvalidTransition  = errors.New("illegal payment state transition")
	ErrAmbiguousOwner     = errors.New("payment cannot reference both an order and a reservation")
	ErrMissingOwner       = errors.New("payment must reference an order or a reservation")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrOwnerNotFound      = errors.New("payment owner not found")
	ErrNotPayable         = errors.New("owner is not in a payable status")
	ErrMethodInactive     = errors.New("payment method is not active")
	ErrDepositOnlineOnly  = errors.New("reservation deposits must be paid online")
	ErrOnlineMethod       = errors.New("online payments cannot be confirmed manually")
	ErrTxnRefCollision    = errors.New("gateway transaction reference already in use")
)

// Coded wraps an error with a stable machine-readable code for logs and
// user-facing responses.
type Coded struct {
	Code    string
	Message string
	Err     error
}

func (e *Coded) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Coded) Unwrap() error { return e.Err }

func WrapCoded(code, msg string, err error) error {
	return &Coded{Code: code, Message: msg, Err: err}
}
