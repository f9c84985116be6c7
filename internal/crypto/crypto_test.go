package crypto

import (
	"bytes"
	"testing"
)

const rootKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewEncryptor_RejectsBadKeys(t *testing.T) {
	if _, err := NewEncryptor("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := NewEncryptor("0011"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestSealer_RoundTripThroughWrappedDataKey(t *testing.T) {
	enc, err := NewEncryptor(rootKeyHex)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	wrapped, err := enc.NewDataKey()
	if err != nil {
		t.Fatalf("NewDataKey: %v", err)
	}
	s, err := enc.Sealer(wrapped)
	if err != nil {
		t.Fatalf("Sealer: %v", err)
	}

	sealed, err := s.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("ya29")) {
		t.Error("sealed token must not contain plaintext")
	}
	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "ya29.access-token" {
		t.Errorf("expected round trip, got %q", got)
	}
}

func TestSealer_EmptyTokenSealsToNil(t *testing.T) {
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal("")
	if err != nil || sealed != nil {
		t.Errorf("expected nil, nil; got %v, %v", sealed, err)
	}
	got, err := s.Open(nil)
	if err != nil || got != "" {
		t.Errorf("expected empty open, got %q, %v", got, err)
	}
}

func TestSealer_WrongKeyFails(t *testing.T) {
	a, _ := NewSealer(bytes.Repeat([]byte{1}, 32))
	b, _ := NewSealer(bytes.Repeat([]byte{2}, 32))
	sealed, err := a.Seal("secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Error("expected authentication failure with the wrong key")
	}
}

func TestEncryptor_SealerRejectsForeignWrap(t *testing.T) {
	enc, _ := NewEncryptor(rootKeyHex)
	if _, err := enc.Sealer([]byte("not wrapped")); err == nil {
		t.Error("expected unwrap failure")
	}
}
