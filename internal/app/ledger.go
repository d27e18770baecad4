package app

import "quickdraw/internal/state"

// escrowAccount holds stakes between escrow and payout. Pot value never sits
// in a player balance while a game is in flight.
const escrowAccount = "duel/escrow"

// Ledger is the external value-transfer collaborator. All escrow, payout and
// refund movement routes through it; a false result aborts the calling
// operation atomically.
//
// The production implementation is backed by the chain's bank accounts, but
// settlement code depends only on this contract: the ledger is untrusted and
// may fail or even call back into the engine mid-transfer.
type Ledger interface {
	// TransferFrom pulls amount from payer into escrow.
	TransferFrom(from string, amount uint64) bool
	// Transfer pays amount out of escrow to recipient.
	Transfer(to string, amount uint64) bool
}

type bankLedger struct {
	st *state.State
}

func (l bankLedger) TransferFrom(from string, amount uint64) bool {
	if err := l.st.Debit(from, amount); err != nil {
		return false
	}
	if err := l.st.Credit(escrowAccount, amount); err != nil {
		return false
	}
	return true
}

func (l bankLedger) Transfer(to string, amount uint64) bool {
	if err := l.st.Debit(escrowAccount, amount); err != nil {
		return false
	}
	if err := l.st.Credit(to, amount); err != nil {
		return false
	}
	return true
}
