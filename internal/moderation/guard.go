package moderation

import (
	"crypto/subtle"
	"fmt"

	"github.com/starford/webring/internal/apperr"
)

// Guard checks the shared moderator secret.
type Guard struct {
	secret []byte
}

// NewGuard creates a guard for secret. A guard with an empty secret rejects
// every caller.
func NewGuard(secret string) *Guard {
	return &Guard{secret: []byte(secret)}
}

// Check returns ErrUnauthorized unless supplied equals the secret. A nil
// Guard rejects every caller.
func (g *Guard) Check(supplied string) error {
	if g == nil || len(g.secret) == 0 || subtle.ConstantTimeCompare([]byte(supplied), g.secret) != 1 {
		return fmt.Errorf("%w: invalid moderator secret", apperr.ErrUnauthorized)
	}
	return nil
}
