package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/ethauth/core"
)

// Signer signs challenge messages the way a wallet would
type Signer struct {
	key    *ecdsa.PrivateKey
	hasher Hasher
}

// NewSigner creates a signer for the given key and hashing scheme
func NewSigner(key *ecdsa.PrivateKey, hasher Hasher) *Signer {
	return &Signer{key: key, hasher: hasher}
}

// NewSignerFromHex creates a signer from a hex encoded secp256k1 private key
func NewSignerFromHex(hexKey string, hasher Hasher) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewSigner(key, hasher), nil
}

// Address returns the address of the signing key
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign returns the 0x-prefixed signature of msg with v in {27, 28}
func (s *Signer) Sign(msg core.ChallengeMessage) (string, error) {
	hash, err := s.hasher.Hash(msg)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}
