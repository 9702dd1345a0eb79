package core

import "time"

const (
	// FieldTypeString is the only field type used in challenge messages
	FieldTypeString = "string"

	// FieldBanner names the banner field of a challenge message
	FieldBanner = "banner"

	// FieldChallenge names the challenge hash field of a challenge message
	FieldChallenge = "challenge"
)

// TypedField is a single entry of a typed-data message as rendered by wallets
type TypedField struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChallengeMessage is the structured message a user signs to prove key ownership.
// It is fully determined by the banner and the challenge hash.
type ChallengeMessage []TypedField

// NewChallengeMessage builds the canonical challenge message
func NewChallengeMessage(banner, challengeHash string) ChallengeMessage {
	return ChallengeMessage{
		{Type: FieldTypeString, Name: FieldBanner, Value: banner},
		{Type: FieldTypeString, Name: FieldChallenge, Value: challengeHash},
	}
}

// Banner returns the banner value of the message
func (m ChallengeMessage) Banner() string {
	return m.value(FieldBanner)
}

// ChallengeHash returns the challenge value of the message
func (m ChallengeMessage) ChallengeHash() string {
	return m.value(FieldChallenge)
}

func (m ChallengeMessage) value(name string) string {
	for _, f := range m {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Validate checks that the message has the canonical layout
func (m ChallengeMessage) Validate() error {
	if len(m) != 2 {
		return ErrInvalidMessage
	}
	if m[0].Type != FieldTypeString || m[0].Name != FieldBanner {
		return ErrInvalidMessage
	}
	if m[1].Type != FieldTypeString || m[1].Name != FieldChallenge || m[1].Value == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Authentication is the outcome of a successful challenge verification
type Authentication struct {
	ID        string    // Unique identifier of the receipt
	Address   string    // Recovered Ethereum address, checksummed
	IssuedAt  time.Time // When verification succeeded
	ExpiresAt time.Time // When the receipt stops being accepted
}
