package models

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"remit/pkg/domain"
)

var txIDEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	txIDEncMode = em
}

// txIDPreimage is encoded as a CBOR array, so field order is the wire order.
type txIDPreimage struct {
	_         struct{} `cbor:",toarray"`
	LedgerID  []byte
	Index     uint64
	Sender    []byte
	Recipient []byte
	Amount    string
	Fee       string
	CreatedAt int64
}

// DeriveTxID hashes the creation inputs with the ledger's salt. Index is
// unique per ledger, so ids never collide within one ledger, and the salt
// keeps ids from distinct ledgers apart.
func DeriveTxID(ledgerID [16]byte, index uint64, sender, recipient domain.AccountID, amount, fee domain.Amount, createdAt time.Time) (domain.TxID, error) {
	pre := txIDPreimage{
		LedgerID:  ledgerID[:],
		Index:     index,
		Sender:    sender[:],
		Recipient: recipient[:],
		Amount:    amount.String(),
		Fee:       fee.String(),
		CreatedAt: createdAt.UnixNano(),
	}
	b, err := txIDEncMode.Marshal(pre)
	if err != nil {
		return domain.TxID{}, fmt.Errorf("encode tx id preimage: %w", err)
	}
	return domain.TxID(blake3.Sum256(b)), nil
}
