package securestore

import (
	"errors"
	"testing"
)

func TestSealOpenRoundtrip(t *testing.T) {
	data, err := seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := open("pass", data)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestOpenTamperedFailsDeterministically(t *testing.T) {
	data, err := seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	data[len(data)-4] ^= 0x01
	_, err = open("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed or ErrInvalid, got %v", err)
	}
}

func TestOpenRejectsWrongPassphraseAndPlaintext(t *testing.T) {
	data, err := seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := open("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, err := open("pass", []byte(`{"publicId":"x"}`)); !errors.Is(err, ErrUnencrypted) {
		t.Fatalf("expected ErrUnencrypted, got %v", err)
	}
}
