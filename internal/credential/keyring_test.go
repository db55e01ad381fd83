package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestTokenRoundTrip(t *testing.T) {
	v := New(keyring.NewArrayKeyring(nil))

	if _, err := v.Token("u1"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token before set: err = %v, want ErrNoToken", err)
	}
	if err := v.SetToken("u1", "secret"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	got, err := v.Token("u1")
	if err != nil || got != "secret" {
		t.Fatalf("Token = %q, %v", got, err)
	}
	if _, err := v.Token("u2"); !errors.Is(err, ErrNoToken) {
		t.Errorf("token leaked across users: err = %v", err)
	}

	if err := v.DeleteToken("u1"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := v.DeleteToken("u1"); err != nil {
		t.Errorf("deleting a missing token: %v", err)
	}
	if _, err := v.Token("u1"); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token after delete: err = %v", err)
	}
}
