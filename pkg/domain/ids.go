// Package domain holds the ledger's primitive value types. Each type enforces
// its invariants at parse time so services never see malformed identities or
// out-of-range amounts.
package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "remit/pkg/domain-errors"
)

// AccountIDLength is the width of an account key in bytes.
const AccountIDLength = 20

// TxIDLength is the width of a transaction id in bytes.
const TxIDLength = 32

// AccountID is an opaque account key. The zero value is the null identity.
type AccountID [AccountIDLength]byte

// ZeroAccount is the null identity.
var ZeroAccount AccountID

// ParseAccountID accepts a 0x-prefixed (or bare) 40 character hex string in
// any letter case. Checksums are not enforced on input.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	if err := decodeFixedHex(s, a[:]); err != nil {
		return ZeroAccount, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid account id")
	}
	return a, nil
}

// MustParseAccountID panics on malformed input. Use for fixtures only.
func MustParseAccountID(s string) AccountID {
	a, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a AccountID) IsZero() bool {
	return a == ZeroAccount
}

// Hex returns the lowercase 0x-prefixed form.
func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String returns the EIP-55 mixed-case checksummed form.
func (a AccountID) String() string {
	lower := hex.EncodeToString(a[:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// TxID identifies a ledger transaction.
type TxID [TxIDLength]byte

// ParseTxID accepts a 0x-prefixed (or bare) 64 character hex string.
// The all-zero id is rejected since no transaction can carry it.
func ParseTxID(s string) (TxID, error) {
	var id TxID
	if err := decodeFixedHex(s, id[:]); err != nil {
		return TxID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid transaction id")
	}
	if id.IsZero() {
		return TxID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid transaction id: zero")
	}
	return id, nil
}

func (id TxID) IsZero() bool {
	return id == TxID{}
}

func (id TxID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TxID) UnmarshalText(text []byte) error {
	parsed, err := ParseTxID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func decodeFixedHex(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(dst) {
		return fmt.Errorf("expected %d hex characters, got %d", 2*len(dst), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}
