package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes. For v0 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// v0 tx auth (optional):
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (the account address for account-signed txs).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth (v0) ----

// v0: account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Duel ----

type DuelCreateTx struct {
	Player string `json:"player"`
	Stake  uint64 `json:"stake"`
}

type DuelJoinTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}

type DuelSubmitTx struct {
	Player     string `json:"player"`
	GameID     uint64 `json:"gameId"`
	ReactionMs uint64 `json:"reactionMs"`
}

type DuelCancelTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}

type DuelClaimTimeoutTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}

// ---- Admin ----

// Admin txs must be account-signed by the configured admin identity.

type AdminSetFeeTx struct {
	FeeBps uint32 `json:"feeBps"`
}

type AdminSetFeeRecipientTx struct {
	Recipient string `json:"recipient"`
}

type AdminAddStakeTierTx struct {
	Amount uint64 `json:"amount"`
}

type AdminRemoveStakeTierTx struct {
	Amount uint64 `json:"amount"`
}
