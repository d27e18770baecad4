package app

import (
	"errors"
	"testing"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

// callbackLedger is a bank ledger that fires a hook on the first outbound
// transfer, modeling a token whose transfer hands control back to the caller.
type callbackLedger struct {
	bankLedger
	onTransfer func()
	fired      bool
}

func (l *callbackLedger) Transfer(to string, amount uint64) bool {
	if !l.fired && l.onTransfer != nil {
		l.fired = true
		l.onTransfer()
	}
	return l.bankLedger.Transfer(to, amount)
}

// failingLedger accepts escrows but refuses all outbound transfers.
type failingLedger struct {
	bankLedger
}

func (failingLedger) Transfer(string, uint64) bool { return false }

func newDuelTestState(t *testing.T) *state.State {
	t.Helper()
	st := state.NewState()
	if err := st.Config.AddTier(100); err != nil {
		t.Fatalf("add tier: %v", err)
	}
	st.Config.FeeRecipient = "house"
	for _, p := range []string{"alice", "bob"} {
		if err := st.Credit(p, 1000); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	return st
}

func activateTestGame(t *testing.T, e *duelEnv, now int64) {
	t.Helper()
	if _, err := e.createGame(codec.DuelCreateTx{Player: "alice", Stake: 100}, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.joinGame(codec.DuelJoinTx{Player: "bob", GameID: 0}, now); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestSettlement_ReentrantTransferTripsGuard(t *testing.T) {
	const now = int64(1000)
	st := newDuelTestState(t)
	env := &duelEnv{st: st, busy: map[uint64]bool{}}
	led := &callbackLedger{bankLedger: bankLedger{st: st}}
	env.ledger = led

	var innerErr error
	led.onTransfer = func() {
		// Mid-payout callback into the engine for the same game.
		_, innerErr = env.submitResult(codec.DuelSubmitTx{Player: "bob", GameID: 0, ReactionMs: 120}, now)
	}

	activateTestGame(t, env, now)
	if _, err := env.submitResult(codec.DuelSubmitTx{Player: "alice", GameID: 0, ReactionMs: 150}, now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := env.submitResult(codec.DuelSubmitTx{Player: "bob", GameID: 0, ReactionMs: 200}, now); err != nil {
		t.Fatalf("settling submit: %v", err)
	}

	if !led.fired {
		t.Fatalf("callback never fired")
	}
	if !errors.Is(innerErr, ErrReentrantCall) {
		t.Fatalf("expected reentrant-call error, got %v", innerErr)
	}
	// Exactly one payout: stake=100, pot=200, fee=5, payout=195.
	if bal := st.Balance("alice"); bal != 1095 {
		t.Fatalf("expected alice balance=1095, got %d", bal)
	}
	if bal := st.Balance(escrowAccount); bal != 0 {
		t.Fatalf("escrow not emptied: %d", bal)
	}
}

func TestSettlement_StateFlipsBeforeTransfers(t *testing.T) {
	const now = int64(1000)
	st := newDuelTestState(t)
	env := &duelEnv{st: st, busy: map[uint64]bool{}}
	led := &callbackLedger{bankLedger: bankLedger{st: st}}
	env.ledger = led

	// Reentry through a fresh engine env on the same state, past the per-call
	// guard. It must still bounce: the game is terminal before the first
	// transfer leaves escrow.
	var innerErr error
	led.onTransfer = func() {
		fresh := newDuelEnv(st)
		_, innerErr = fresh.submitResult(codec.DuelSubmitTx{Player: "bob", GameID: 0, ReactionMs: 120}, now)
	}

	activateTestGame(t, env, now)
	if _, err := env.submitResult(codec.DuelSubmitTx{Player: "alice", GameID: 0, ReactionMs: 150}, now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := env.submitResult(codec.DuelSubmitTx{Player: "bob", GameID: 0, ReactionMs: 200}, now); err != nil {
		t.Fatalf("settling submit: %v", err)
	}

	if !errors.Is(innerErr, ErrGameNotActive) {
		t.Fatalf("expected game-not-active error, got %v", innerErr)
	}
	if bal := st.Balance("alice"); bal != 1095 {
		t.Fatalf("expected single payout, alice balance=%d", bal)
	}
}

func TestCancel_ReentrantRefundTripsGuard(t *testing.T) {
	const now = int64(1000)
	st := newDuelTestState(t)
	env := &duelEnv{st: st, busy: map[uint64]bool{}}
	led := &callbackLedger{bankLedger: bankLedger{st: st}}
	env.ledger = led

	var innerErr error
	led.onTransfer = func() {
		_, innerErr = env.cancelGame(codec.DuelCancelTx{Player: "alice", GameID: 0})
	}

	if _, err := env.createGame(codec.DuelCreateTx{Player: "alice", Stake: 100}, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.cancelGame(codec.DuelCancelTx{Player: "alice", GameID: 0}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if !errors.Is(innerErr, ErrReentrantCall) {
		t.Fatalf("expected reentrant-call error, got %v", innerErr)
	}
	if bal := st.Balance("alice"); bal != 1000 {
		t.Fatalf("expected single refund, alice balance=%d", bal)
	}
}

func TestSettlement_TransferFailureSurfaces(t *testing.T) {
	const now = int64(1000)
	st := newDuelTestState(t)
	env := &duelEnv{st: st, ledger: failingLedger{bankLedger{st: st}}, busy: map[uint64]bool{}}

	activateTestGame(t, env, now)
	if _, err := env.submitResult(codec.DuelSubmitTx{Player: "alice", GameID: 0, ReactionMs: 150}, now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := env.submitResult(codec.DuelSubmitTx{Player: "bob", GameID: 0, ReactionMs: 200}, now)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer-failed error, got %v", err)
	}
}
