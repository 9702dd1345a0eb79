// Package eth implements the Ethereum side of challenge signing: typed-data
// hashing, signature recovery and a private-key signer.
package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/ethauth/core"
)

// ChallengeType is the EIP-712 primary type of a challenge message
const ChallengeType = "Challenge"

// Hasher computes the 32-byte digest a wallet signs for a challenge message
type Hasher interface {
	Hash(msg core.ChallengeMessage) ([]byte, error)
}

// LegacyHasher hashes messages the way eth_signTypedData v1 does:
// keccak256(keccak256(schema...) || keccak256(values...)) over packed strings.
type LegacyHasher struct{}

// Hash implements Hasher
func (LegacyHasher) Hash(msg core.ChallengeMessage) ([]byte, error) {
	if len(msg) == 0 {
		return nil, core.ErrInvalidMessage
	}

	schema := make([][]byte, 0, len(msg))
	values := make([][]byte, 0, len(msg))
	for _, f := range msg {
		if f.Type != core.FieldTypeString || f.Name == "" {
			return nil, fmt.Errorf("unsupported field %q of type %q: %w", f.Name, f.Type, core.ErrInvalidMessage)
		}
		schema = append(schema, []byte(f.Type+" "+f.Name))
		values = append(values, []byte(f.Value))
	}

	return crypto.Keccak256(crypto.Keccak256(schema...), crypto.Keccak256(values...)), nil
}

// EIP712Domain describes the signing domain of EIP-712 challenge messages
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// EIP712Hasher hashes messages as EIP-712 (eth_signTypedData_v4) structs of type
// Challenge(string banner,string challenge)
type EIP712Hasher struct {
	domain EIP712Domain
}

// NewEIP712Hasher creates a hasher for the given domain
func NewEIP712Hasher(domain EIP712Domain) (*EIP712Hasher, error) {
	if domain.Name == "" {
		return nil, fmt.Errorf("eip712 domain name is required")
	}
	if domain.VerifyingContract != "" && !common.IsHexAddress(domain.VerifyingContract) {
		return nil, fmt.Errorf("eip712 verifying contract %q: %w", domain.VerifyingContract, core.ErrInvalidAddress)
	}
	return &EIP712Hasher{domain: domain}, nil
}

// TypedData renders msg as the typed-data document a wallet is asked to sign
func (h *EIP712Hasher) TypedData(msg core.ChallengeMessage) apitypes.TypedData {
	domainTypes := []apitypes.Type{{Name: "name", Type: "string"}}
	domain := apitypes.TypedDataDomain{Name: h.domain.Name}

	if h.domain.Version != "" {
		domainTypes = append(domainTypes, apitypes.Type{Name: "version", Type: "string"})
		domain.Version = h.domain.Version
	}
	if h.domain.ChainID != nil {
		domainTypes = append(domainTypes, apitypes.Type{Name: "chainId", Type: "uint256"})
		domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(h.domain.ChainID))
	}
	if h.domain.VerifyingContract != "" {
		domainTypes = append(domainTypes, apitypes.Type{Name: "verifyingContract", Type: "address"})
		domain.VerifyingContract = common.HexToAddress(h.domain.VerifyingContract).Hex()
	}

	challengeTypes := make([]apitypes.Type, 0, len(msg))
	message := make(apitypes.TypedDataMessage, len(msg))
	for _, f := range msg {
		challengeTypes = append(challengeTypes, apitypes.Type{Name: f.Name, Type: f.Type})
		message[f.Name] = f.Value
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes,
			ChallengeType:  challengeTypes,
		},
		PrimaryType: ChallengeType,
		Domain:      domain,
		Message:     message,
	}
}

// Hash implements Hasher
func (h *EIP712Hasher) Hash(msg core.ChallengeMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	hash, _, err := apitypes.TypedDataAndHash(h.TypedData(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", core.ErrInvalidMessage)
	}
	return hash, nil
}
