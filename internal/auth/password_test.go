package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	digest, err := HashPassword("Abcdef1!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if digest == "Abcdef1!" {
		t.Fatalf("digest must not equal plaintext")
	}
	if !CheckPassword("Abcdef1!", digest) {
		t.Fatalf("expected match")
	}
	if CheckPassword("wrong-password", digest) {
		t.Fatalf("expected mismatch")
	}
}

func TestCheckPassword_InvalidDigest(t *testing.T) {
	if CheckPassword("whatever", "not-a-bcrypt-hash") {
		t.Fatalf("expected mismatch for malformed digest")
	}
}

func TestValidPassword(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"Abcdef1!", true},
		{"Str0ng pass!", true},
		{"short1!", false},
		{"alllowercase1!", false},
		{"NoDigits!!", false},
		{"NoSpecial123", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := ValidPassword(tc.password); got != tc.want {
			t.Fatalf("ValidPassword(%q) = %v, want %v", tc.password, got, tc.want)
		}
	}
}
