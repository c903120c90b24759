package hash

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("the same bytes every time")

	first := Sum(data)
	second := Sum(data)

	if first != second {
		t.Errorf("Sum is not deterministic: %s != %s", first, second)
	}
	if len(first) != Length {
		t.Errorf("fingerprint length = %d, want %d", len(first), Length)
	}
}

func TestSumDistinguishesContent(t *testing.T) {
	a := Sum([]byte("content a"))
	b := Sum([]byte("content b"))

	if a == b {
		t.Error("different content produced the same fingerprint")
	}
}

func TestSumEmpty(t *testing.T) {
	// SHA-256 пустого содержимого — известная константа
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(nil) = %s, want %s", got, want)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		want        bool
	}{
		{"valid", Sum([]byte("x")), true},
		{"empty", "", false},
		{"too short", "abc123", false},
		{"uppercase", strings.ToUpper(Sum([]byte("x"))), false},
		{"non-hex", strings.Repeat("z", Length), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.fingerprint); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.fingerprint, got, tt.want)
			}
		})
	}
}
