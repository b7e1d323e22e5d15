package duty

import (
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateCode(codeLength)
		if err != nil {
			t.Fatalf("generateCode: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("len = %d, want %d", len(code), codeLength)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	// 50 draws from 36^6 colliding down to a handful would mean broken
	// randomness.
	if len(seen) < 45 {
		t.Fatalf("only %d distinct codes out of 50", len(seen))
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABC123", "ABC123"},
		{"abc123", "ABC123"},
		{"  abc 123\n", "ABC123"},
		{"\ta B c 1 2 3 ", "ABC123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeCode(tt.in); got != tt.want {
			t.Errorf("normalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
