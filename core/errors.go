package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMethod      = errors.New("invalid auth method")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrSuperseded         = errors.New("attempt superseded")
	ErrRedirectPending    = errors.New("redirect pending")
	ErrNoCallback         = errors.New("no oauth2 callback parameters")
	ErrNoAttempt          = errors.New("no attempt to retry")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNoWallet           = errors.New("no wallet detected")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrUserRejected       = errors.New("signature request was rejected by user")
	ErrAccountMismatch    = errors.New("wallet account does not match identifier")
	ErrStateMismatch      = errors.New("oauth2 state mismatch")
	ErrNotFound           = errors.New("not found")
)

// ErrorKind classifies an AuthError
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindNetwork   ErrorKind = "network"
	KindWallet    ErrorKind = "wallet"
	KindChallenge ErrorKind = "challenge"
)

// AuthError is a classified, user-facing authentication failure
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error // Underlying cause, kept for diagnostics
}

// NewAuthError creates an AuthError of the given kind
func NewAuthError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

func (e *AuthError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AsAuthError extracts an AuthError from err, classifying unknown errors as auth
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return NewAuthError(KindAuth, err.Error(), err)
}

// KindOf returns the ErrorKind of err, or "" for nil
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsAuthError(err).Kind
}
