package ports

import "github.com/layer-3/ethauth/core"

// Tokenizer converts authentication results to signed receipts and back
type Tokenizer interface {
	AuthenticationToToken(auth *core.Authentication) (string, error)
	TokenToAuthentication(token string) (*core.Authentication, error)
}
