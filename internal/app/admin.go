package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

// requireAdminTx gates the privileged configuration surface: the envelope
// must be signed by the admin account fixed at genesis, with a fresh nonce.
func requireAdminTx(st *state.State, env codec.TxEnvelope) error {
	admin := st.Config.Admin
	if admin == "" {
		return fmt.Errorf("%w: no admin configured", ErrNotAdmin)
	}
	if env.Signer != admin {
		return fmt.Errorf("%w: signer %q", ErrNotAdmin, env.Signer)
	}
	if err := requireAccountAuth(st, env, admin); err != nil {
		return err
	}
	return consumeTxNonce(st, env)
}

func adminSetFee(st *state.State, env codec.TxEnvelope, msg codec.AdminSetFeeTx) (*abci.ExecTxResult, error) {
	if err := requireAdminTx(st, env); err != nil {
		return nil, err
	}
	if msg.FeeBps > state.MaxFeeBps {
		return nil, fmt.Errorf("feeBps %d exceeds max %d", msg.FeeBps, state.MaxFeeBps)
	}
	// Read at settlement time, so this also applies to games already active.
	st.Config.FeeBps = msg.FeeBps
	return okEvent("FeeUpdated", map[string]string{
		"feeBps": fmt.Sprintf("%d", msg.FeeBps),
	}), nil
}

func adminSetFeeRecipient(st *state.State, env codec.TxEnvelope, msg codec.AdminSetFeeRecipientTx) (*abci.ExecTxResult, error) {
	if err := requireAdminTx(st, env); err != nil {
		return nil, err
	}
	if msg.Recipient == "" {
		return nil, fmt.Errorf("missing recipient")
	}
	st.Config.FeeRecipient = msg.Recipient
	return okEvent("FeeRecipientUpdated", map[string]string{
		"recipient": msg.Recipient,
	}), nil
}

func adminAddStakeTier(st *state.State, env codec.TxEnvelope, msg codec.AdminAddStakeTierTx) (*abci.ExecTxResult, error) {
	if err := requireAdminTx(st, env); err != nil {
		return nil, err
	}
	if err := st.Config.AddTier(msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("StakeTierAdded", map[string]string{
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func adminRemoveStakeTier(st *state.State, env codec.TxEnvelope, msg codec.AdminRemoveStakeTierTx) (*abci.ExecTxResult, error) {
	if err := requireAdminTx(st, env); err != nil {
		return nil, err
	}
	if err := st.Config.RemoveTier(msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("StakeTierRemoved", map[string]string{
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}
