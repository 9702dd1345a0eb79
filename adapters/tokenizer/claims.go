package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ReceiptClaims are the standard claims of an authentication receipt.
// The subject carries the authenticated address.
type ReceiptClaims struct {
	jwt.RegisteredClaims
}
