package encryptor

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	enc := NewEncryptor()
	plain := []byte("chunk payload for sealing")

	sealed, err := enc.Seal(plain, "correct horse")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("sealed output contains the plaintext")
	}

	opened, err := enc.Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Error("opened bytes differ from the original plaintext")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	enc := NewEncryptor()

	sealed, err := enc.Seal([]byte("secret chunk"), "right")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := enc.Open(sealed, "wrong"); !errors.Is(err, ErrOpen) {
		t.Errorf("Open with wrong passphrase: error = %v, want ErrOpen", err)
	}
}

func TestOpenTamperedData(t *testing.T) {
	enc := NewEncryptor()

	sealed, err := enc.Seal([]byte("secret chunk"), "pw")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	tampered := make([]byte, len(sealed))
	copy(tampered, sealed)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := enc.Open(tampered, "pw"); !errors.Is(err, ErrOpen) {
		t.Errorf("Open of tampered data: error = %v, want ErrOpen", err)
	}
}

func TestOpenTruncatedData(t *testing.T) {
	enc := NewEncryptor()

	if _, err := enc.Open([]byte("short"), "pw"); !errors.Is(err, ErrOpen) {
		t.Errorf("Open of truncated data: error = %v, want ErrOpen", err)
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	enc := NewEncryptor()
	plain := []byte("same plaintext")

	a, err := enc.Seal(plain, "pw")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := enc.Seal(plain, "pw")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext produced identical output")
	}
}
