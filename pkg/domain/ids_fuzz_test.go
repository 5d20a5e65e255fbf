package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseSessionID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE sessions;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSessionID(input)
		if err == nil {
			roundTrip, err2 := ParseSessionID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseIssuanceNullifier checks accepted nullifiers are non-negative
// and keep their textual form.
func FuzzParseIssuanceNullifier(f *testing.F) {
	f.Add("0")
	f.Add("0x1f")
	f.Add("-1")
	f.Add("99999999999999999999999999999999999999999")

	f.Fuzz(func(t *testing.T, input string) {
		n, err := ParseIssuanceNullifier(input)
		if err != nil {
			return
		}
		if n.Int().Sign() < 0 {
			t.Errorf("negative nullifier accepted: %q", input)
		}
		if n.String() != input {
			t.Errorf("nullifier text changed: %q -> %q", input, n.String())
		}
	})
}
