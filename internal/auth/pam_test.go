//go:build pam

package auth

import "testing"

func TestPAMScheme(t *testing.T) {
	if _, err := New("pam:"); err == nil {
		t.Error("expected error for pam secret without service")
	}
	a, err := New("pam:sshd")
	if err != nil {
		t.Fatalf("New(pam:sshd): %v", err)
	}
	if a.Verify("no-colon") || a.Verify(":password") {
		t.Error("malformed user:password pairs must be rejected before PAM is consulted")
	}
}
