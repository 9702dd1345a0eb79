package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/ports"
)

// AudienceReceipt is the audience of authentication receipts
const AudienceReceipt = "ethauth:receipt"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// AuthenticationToToken converts an Authentication to a signed receipt
func (j *JWTTokenizer) AuthenticationToToken(auth *core.Authentication) (string, error) {
	claims := ReceiptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   auth.Address,
			ID:        auth.ID,
			ExpiresAt: jwt.NewNumericDate(auth.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(auth.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceReceipt},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt: %w", err)
	}

	return signedToken, nil
}

// TokenToAuthentication parses a receipt and returns the authentication it records
func (j *JWTTokenizer) TokenToAuthentication(tokenStr string) (*core.Authentication, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ReceiptClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceReceipt), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse receipt: %w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*ReceiptClaims)
	if !ok {
		return nil, core.ErrInvalidToken
	}

	auth := &core.Authentication{
		ID:        claims.ID,
		Address:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		auth.IssuedAt = claims.IssuedAt.Time
	}

	return auth, nil
}
