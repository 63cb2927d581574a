package credentials

import (
	"bytes"
	"errors"
	"testing"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func TestSealOpen(t *testing.T) {
	box, err := NewBox(key(1))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := box.Seal(Credentials{"api_key": "k-123"})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, []byte("k-123")) {
		t.Fatal("sealed blob leaks plaintext")
	}
	got, err := box.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if got["api_key"] != "k-123" {
		t.Errorf("api_key = %q", got["api_key"])
	}
}

func TestOpenFailures(t *testing.T) {
	box, _ := NewBox(key(1))
	other, _ := NewBox(key(2))
	sealed, _ := box.Seal(Credentials{"api_key": "x"})

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name   string
		box    *Box
		sealed []byte
		want   error
	}{
		{"wrong key", other, sealed, ErrOpen},
		{"tampered", box, tampered, ErrOpen},
		{"truncated", box, sealed[:10], ErrOpen},
		{"empty", box, nil, ErrMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.box.Open(tt.sealed); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewBoxRejectsShortKey(t *testing.T) {
	if _, err := NewBox([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("err = %v", err)
	}
}
