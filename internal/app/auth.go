package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

const txAuthDomainV0 = "duel/tx/v0"

func txAuthSignBytesV0(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV0)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV0)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("%w: missing tx.nonce", ErrUnauthorized)
	}
	if env.Signer == "" {
		return fmt.Errorf("%w: missing tx.signer", ErrUnauthorized)
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("%w: missing tx.sig", ErrUnauthorized)
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: invalid tx.sig length: got %d want %d", ErrUnauthorized, len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

func requireRegisterAccountAuth(env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if msg.Account == "" {
		return fmt.Errorf("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return fmt.Errorf("%w: tx signer mismatch: signer=%q want=%q", ErrUnauthorized, env.Signer, msg.Account)
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}
	return nil
}

func requireAccountAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == "" {
		return fmt.Errorf("missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return fmt.Errorf("%w: tx signer mismatch: signer=%q want=%q", ErrUnauthorized, env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: account %q missing pubKey (auth/register_account required)", ErrUnauthorized, account)
	}
	msg := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}
	return nil
}

// consumeTxNonce enforces strictly increasing numeric nonces per signer.
// Called only after signature verification succeeds.
func consumeTxNonce(st *state.State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce %q: must be numeric", env.Nonce)
	}
	last := st.NonceMax[env.Signer]
	if n <= last {
		return fmt.Errorf("replayed tx.nonce %d: last accepted %d", n, last)
	}
	st.NonceMax[env.Signer] = n
	return nil
}
