package sshtest

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// HostKeyBits is the size of generated RSA host keys. Small enough to keep
// tests fast.
const HostKeyBits = 2048

// NewConfig returns a server configuration accepting exactly user/password,
// together with its freshly generated host key.
func NewConfig(user, password string) (*ssh.ServerConfig, ssh.Signer, error) {
	key, err := NewRSAPrivateKey(HostKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate host key: %v", err)
	}
	signer, err := ssh.ParsePrivateKey(RSAPrivateKeyPEM(key))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse host key: %v", err)
	}
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == user && subtle.ConstantTimeCompare(pass, []byte(password)) == 1 {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials for %q", c.User())
		},
		ServerVersion: Version,
	}
	config.AddHostKey(signer)
	return config, signer, nil
}
