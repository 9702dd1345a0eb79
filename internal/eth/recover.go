package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/ethauth/core"
)

// SignatureLength is the length of an r || s || v signature
const SignatureLength = crypto.SignatureLength

// Recoverer recovers signer addresses from signed challenge messages
type Recoverer struct {
	hasher Hasher
}

// NewRecoverer creates a recoverer using the given hashing scheme
func NewRecoverer(hasher Hasher) *Recoverer {
	return &Recoverer{hasher: hasher}
}

// Recover returns the checksummed address of the key that signed msg
func (r *Recoverer) Recover(msg core.ChallengeMessage, signature string) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		return "", err
	}

	hash, err := r.hasher.Hash(msg)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// DecodeSignature parses a 0x-prefixed 65 byte signature and normalizes
// the recovery id to 0 or 1
func DecodeSignature(signature string) ([]byte, error) {
	decoded, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(decoded) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrInvalidSignature)
	}

	sig := make([]byte, SignatureLength)
	copy(sig, decoded)

	switch v := sig[crypto.RecoveryIDOffset]; v {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] = v - 27
	default:
		return nil, fmt.Errorf("unexpected recovery id %d: %w", v, core.ErrInvalidSignature)
	}

	return sig, nil
}
