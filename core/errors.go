package core

import "errors"

var (
	ErrInvalidAddress       = errors.New("invalid ethereum address")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidMessage       = errors.New("invalid challenge message")
	ErrStoreOperationFailed = errors.New("store operation failed")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token has expired")
)
