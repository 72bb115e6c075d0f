package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"lv-goldex/internal/model"
)

var ErrChainBroken = errors.New("hash chain broken")

// ChainHash links a transaction to the previous one on the same wallet.
// Only fields that never change after insert are covered; status and
// metadata move during admin review.
func ChainHash(t model.Transaction, prevHash string) string {
	buf := t.ID + "|" + t.WalletID + "|" + t.UserID + "|" + string(t.Kind) + "|" +
		t.Amount.StringFixed(6) + "|" + t.ReferenceID + "|" +
		strconv.FormatInt(t.CreatedAt.UTC().UnixMicro(), 10) + "|" + prevHash
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks a wallet's transactions, oldest first.
func VerifyChain(txs []model.Transaction) error {
	prev := ""
	for i, t := range txs {
		if t.PrevHash != prev {
			return fmt.Errorf("%w: transaction %s (#%d) prev hash mismatch", ErrChainBroken, t.ID, i)
		}
		if want := ChainHash(t, prev); t.Hash != want {
			return fmt.Errorf("%w: transaction %s (#%d) hash mismatch", ErrChainBroken, t.ID, i)
		}
		prev = t.Hash
	}
	return nil
}
