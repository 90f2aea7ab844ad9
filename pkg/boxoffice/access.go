package boxoffice

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	accessScopeReceipt    = "receipt"
	accessScopeNomination = "nomination"
)

// AccessTokens issues bearer tokens that prove the holder was handed a resource by the engine.
// A token is the HMAC-SHA512 of scope and subject under a server secret.
type AccessTokens struct {
	secret string
}

// NewAccessTokens returns tokens signed with secret.
func NewAccessTokens(secret string) (AccessTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return AccessTokens{}, fmt.Errorf("%w: access token secret is empty", ErrInvalidServiceConfig)
	}
	return AccessTokens{secret: secret}, nil
}

// RandomAccessTokens returns tokens signed with a per-process secret. They stop verifying after a restart.
func RandomAccessTokens() AccessTokens {
	return AccessTokens{secret: uuid.NewString() + uuid.NewString()}
}

func (tokens AccessTokens) issue(scope string, subject string) string {
	return SignPayload([]byte(scope+":"+subject), tokens.secret)
}

func (tokens AccessTokens) verify(scope string, subject string, token string) bool {
	if tokens.secret == "" || subject == "" {
		return false
	}
	return VerifySignature([]byte(scope+":"+subject), token, tokens.secret)
}
