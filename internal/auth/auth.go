package auth

import "crypto/subtle"

// Authenticator checks a presented credential against the shared secret.
// The pull endpoint and the subscription handshake use the same instance.
type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate reports whether presented matches the secret. A missing or
// empty token is always rejected.
func (a *Authenticator) Authenticate(presented string) bool {
	if presented == "" || len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), a.secret) == 1
}
