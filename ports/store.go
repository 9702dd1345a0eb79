package ports

import "context"

// ChallengeStore keeps at most one pending challenge per address.
// Addresses passed in are already lowercased by the caller.
type ChallengeStore interface {
	// StoreChallenge saves the challenge for address, replacing any previous one
	StoreChallenge(ctx context.Context, address, challengeHash string) error

	// GetChallenge reads the pending challenge without consuming it
	GetChallenge(ctx context.Context, address string) (challengeHash string, found bool, err error)

	// DeleteChallenge removes the pending challenge. Deleting a missing record is not an error.
	DeleteChallenge(ctx context.Context, address string) error

	// ConsumeChallenge atomically deletes the record only if it still holds
	// challengeHash and reports whether it did
	ConsumeChallenge(ctx context.Context, address, challengeHash string) (bool, error)
}
