package ports

import "github.com/layer-3/ethauth/core"

// SignatureRecoverer returns the address whose key produced signature over msg.
// It never reports "no address": any failure is an error.
type SignatureRecoverer interface {
	Recover(msg core.ChallengeMessage, signature string) (string, error)
}
