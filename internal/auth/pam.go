//go:build pam

package auth

import (
	"errors"
	"strings"

	pam "github.com/msteinert/pam/v2"
)

func init() {
	schemes["pam"] = func(service string) (Authenticator, error) {
		if service == "" {
			return nil, errors.New("pam secret needs a service name, e.g. pam:sshd")
		}
		return pamService(service), nil
	}
}

// pamService checks "user:password" pairs against a PAM service.
type pamService string

func (s pamService) Verify(presented string) bool {
	user, password, ok := strings.Cut(presented, ":")
	if !ok || user == "" {
		return false
	}
	t, err := pam.StartFunc(string(s), user, func(style pam.Style, msg string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return password, nil
		default:
			return "", nil
		}
	})
	if err != nil {
		return false
	}
	defer t.End()
	return t.Authenticate(0) == nil
}
