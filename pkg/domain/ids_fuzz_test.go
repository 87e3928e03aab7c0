//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseAccountID checks that parsing never panics and that every
// accepted id round-trips through its checksummed form.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	f.Add("0x0000000000000000000000000000000000000000")
	f.Add("not-an-account")
	f.Add("'; DROP TABLE users;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAccountID(input)
		if err != nil {
			return
		}
		back, err := ParseAccountID(a.String())
		if err != nil {
			t.Fatalf("checksummed form failed to parse: %v", err)
		}
		if back != a {
			t.Fatal("round-trip changed account value")
		}
	})
}

// FuzzParseAmount checks that accepted amounts stay within 128 bits and
// round-trip through their decimal form.
func FuzzParseAmount(f *testing.F) {
	f.Add("0")
	f.Add("1")
	f.Add("340282366920938463463374607431768211455")
	f.Add("340282366920938463463374607431768211456")
	f.Add("-1")
	f.Add("1e18")

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAmount(input)
		if err != nil {
			return
		}
		back, err := ParseAmount(a.String())
		if err != nil {
			t.Fatalf("decimal form failed to parse: %v", err)
		}
		if !back.Equal(a) {
			t.Fatal("round-trip changed amount value")
		}
	})
}
