// Package auth verifies the secret a client presents in its handshake.
//
// A listener secret takes one of three forms:
//   - a bcrypt hash ("$2a$...", "$2b$...", "$2y$..."), compared with bcrypt
//   - "pam:<service>", where the client presents "user:password" and the pair
//     is checked against the PAM service (only in binaries built with -tags pam)
//   - anything else, compared verbatim in constant time
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator decides whether a presented secret is acceptable.
type Authenticator interface {
	Verify(presented string) bool
}

// schemes maps "<scheme>:" prefixes to constructors. Optional backends
// register themselves from build-tagged files.
var schemes = map[string]func(arg string) (Authenticator, error){}

// New returns the Authenticator for a configured secret, or nil when secret is
// empty and no check should be made.
func New(secret string) (Authenticator, error) {
	if secret == "" {
		return nil, nil
	}
	if isBcryptHash(secret) {
		if _, err := bcrypt.Cost([]byte(secret)); err != nil {
			return nil, fmt.Errorf("invalid bcrypt secret: %w", err)
		}
		return bcryptHash(secret), nil
	}
	if scheme, arg, ok := strings.Cut(secret, ":"); ok && scheme == "pam" {
		ctor, ok := schemes[scheme]
		if !ok {
			return nil, fmt.Errorf("secret scheme %q is not supported by this build", scheme)
		}
		return ctor(arg)
	}
	return plain(secret), nil
}

// Hash returns a bcrypt hash of secret suitable for use as a listener secret.
func Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

type plain string

func (p plain) Verify(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(p), []byte(presented)) == 1
}

type bcryptHash string

func (h bcryptHash) Verify(presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(presented)) == nil
}
