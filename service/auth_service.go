package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/ports"
	"github.com/rs/zerolog"
)

const (
	// DefaultReceiptTTL is how long an authentication receipt is accepted
	DefaultReceiptTTL = 5 * time.Minute

	secretSize = 32
)

// Config holds the immutable settings of an AuthService
type Config struct {
	// Banner is shown by the wallet next to the challenge
	Banner string

	// ReceiptTTL is the lifetime of receipts issued after verification
	ReceiptTTL time.Duration
}

// AuthService issues and verifies signed challenges
type AuthService struct {
	store     ports.ChallengeStore
	recoverer ports.SignatureRecoverer
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	logger    zerolog.Logger

	banner     string
	secret     []byte
	receiptTTL time.Duration
}

// NewAuthService creates a new authentication service.
// The challenge secret is generated here and lives as long as the service.
func NewAuthService(
	cfg Config,
	store ports.ChallengeStore,
	recoverer ports.SignatureRecoverer,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	logger zerolog.Logger,
) (*AuthService, error) {
	if cfg.Banner == "" {
		return nil, errors.New("banner is required")
	}
	if store == nil || recoverer == nil {
		return nil, errors.New("challenge store and signature recoverer are required")
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate challenge secret: %w", err)
	}

	receiptTTL := cfg.ReceiptTTL
	if receiptTTL <= 0 {
		receiptTTL = DefaultReceiptTTL
	}

	return &AuthService{
		store:      store,
		recoverer:  recoverer,
		tokenizer:  tokenizer,
		eventPub:   eventPub,
		logger:     logger.With().Str("component", "auth_service").Logger(),
		banner:     cfg.Banner,
		secret:     secret,
		receiptTTL: receiptTTL,
	}, nil
}

// ChallengeMessage rebuilds the message a wallet signs for challengeHash
func (s *AuthService) ChallengeMessage(challengeHash string) core.ChallengeMessage {
	return core.NewChallengeMessage(s.banner, challengeHash)
}

// CreateChallenge stores a fresh challenge for address and returns the message to sign
func (s *AuthService) CreateChallenge(ctx context.Context, address string) (core.ChallengeMessage, error) {
	if !IsValidAddress(address) {
		return nil, core.ErrInvalidAddress
	}

	challengeHash, err := s.newChallengeHash(address)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(address)
	if err := s.store.StoreChallenge(ctx, key, challengeHash); err != nil {
		return nil, storeError("failed to store challenge", err)
	}

	s.logger.Debug().Str("address", key).Msg("challenge issued")

	return s.ChallengeMessage(challengeHash), nil
}

// CheckChallenge verifies signature over the challenge message for challengeHash.
// It returns the signer address and true when the signer holds that exact pending
// challenge, which is consumed. A wrong signer or unknown challenge yields false
// without an error.
func (s *AuthService) CheckChallenge(ctx context.Context, challengeHash, signature string) (string, bool, error) {
	recovered, err := s.recoverer.Recover(s.ChallengeMessage(challengeHash), signature)
	if err != nil {
		return "", false, fmt.Errorf("failed to recover signer: %w", err)
	}

	key := strings.ToLower(recovered)
	stored, found, err := s.store.GetChallenge(ctx, key)
	if err != nil {
		return "", false, storeError("failed to get challenge", err)
	}
	if !found || stored != challengeHash {
		s.logger.Debug().Str("address", key).Msg("challenge not matched")
		return "", false, nil
	}

	consumed, err := s.store.ConsumeChallenge(ctx, key, challengeHash)
	if err != nil {
		return "", false, storeError("failed to consume challenge", err)
	}
	if !consumed {
		s.logger.Debug().Str("address", key).Msg("challenge consumed concurrently")
		return "", false, nil
	}

	s.logger.Info().Str("address", key).Msg("challenge verified")

	if s.eventPub != nil {
		if err := s.eventPub.PublishAuthenticated(ctx, recovered, time.Now()); err != nil {
			// The challenge is already consumed, which is the critical part
			s.logger.Warn().Err(err).Str("address", key).Msg("failed to publish authenticated event")
		}
	}

	return recovered, true, nil
}

// IssueReceipt signs a short-lived receipt stating that address was authenticated
func (s *AuthService) IssueReceipt(address string) (string, *core.Authentication, error) {
	if s.tokenizer == nil {
		return "", nil, errors.New("receipts are not configured")
	}

	now := time.Now()
	auth := &core.Authentication{
		ID:        uuid.NewString(),
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.receiptTTL),
	}

	token, err := s.tokenizer.AuthenticationToToken(auth)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	return token, auth, nil
}

// ValidateReceipt checks a receipt issued by IssueReceipt and returns the
// authentication it records
func (s *AuthService) ValidateReceipt(token string) (*core.Authentication, error) {
	if s.tokenizer == nil {
		return nil, errors.New("receipts are not configured")
	}

	auth, err := s.tokenizer.TokenToAuthentication(token)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt: %w", err)
	}

	return auth, nil
}

// storeError tags a storage failure with core.ErrStoreOperationFailed
func storeError(msg string, err error) error {
	if errors.Is(err, core.ErrStoreOperationFailed) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, core.ErrStoreOperationFailed, err)
}

// newChallengeHash derives hex(HMAC-SHA256(secret, address || nonce))
func (s *AuthService) newChallengeHash(address string) (string, error) {
	nonce, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(address + nonce.String()))

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// IsValidAddress reports whether address is a 0x-prefixed 20 byte hex address
func IsValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}
