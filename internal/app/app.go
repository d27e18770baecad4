package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/rs/zerolog"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

const (
	AppVersion uint64 = 1
)

type DuelApp struct {
	*abci.BaseApplication

	home   string
	logger zerolog.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, logger zerolog.Logger) (*DuelApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &DuelApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger,
		st:              st,
		lastHash:        st.AppHash(),
	}
	logger.Info().Int64("height", st.Height).Uint64("games", st.NextGameID).Msg("state loaded")
	return a, nil
}

func (a *DuelApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "quickdraw (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *DuelApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: codeValidation, Log: err.Error()}, nil
	}
	// v0: only structural validation; full checks run in FinalizeBlock.
	return &abci.CheckTxResponse{Code: 0}, nil
}

// GenesisState is the app-level genesis document. The admin identity is the
// single privileged role and can only be established here.
type GenesisState struct {
	Admin        string            `json:"admin,omitempty"`
	FeeBps       *uint32           `json:"feeBps,omitempty"`
	FeeRecipient string            `json:"feeRecipient,omitempty"`
	StakeTiers   []uint64          `json:"stakeTiers,omitempty"`
	Accounts     map[string]uint64 `json:"accounts,omitempty"`
}

func (a *DuelApp) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(req.AppStateBytes) == 0 {
		return &abci.InitChainResponse{}, nil
	}
	var gen GenesisState
	if err := json.Unmarshal(req.AppStateBytes, &gen); err != nil {
		return nil, fmt.Errorf("decode genesis app state: %w", err)
	}
	if gen.FeeBps != nil {
		if *gen.FeeBps > state.MaxFeeBps {
			return nil, fmt.Errorf("genesis feeBps %d exceeds max %d", *gen.FeeBps, state.MaxFeeBps)
		}
		a.st.Config.FeeBps = *gen.FeeBps
	}
	a.st.Config.Admin = gen.Admin
	a.st.Config.FeeRecipient = gen.FeeRecipient
	for _, tier := range gen.StakeTiers {
		if err := a.st.Config.AddTier(tier); err != nil {
			return nil, fmt.Errorf("genesis stake tiers: %w", err)
		}
	}
	for addr, bal := range gen.Accounts {
		if err := a.st.Credit(addr, bal); err != nil {
			return nil, fmt.Errorf("genesis accounts: %w", err)
		}
	}
	a.lastHash = a.st.AppHash()
	return &abci.InitChainResponse{AppHash: a.lastHash}, nil
}

func (a *DuelApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, nowUnix)
		if res.Code != 0 {
			a.logger.Debug().Uint32("code", res.Code).Str("log", res.Log).Msg("tx rejected")
		}
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *DuelApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *DuelApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /games
	// - /game/<id>
	// - /account/<addr>
	// - /stats/<addr>
	// - /config
	// - /totals
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/games":
		ids := make([]uint64, 0, len(a.st.Games))
		for id := range a.st.Games {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/game/"):
		raw := strings.TrimPrefix(path, "/game/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: codeValidation, Log: "invalid game id", Height: a.st.Height}, nil
		}
		g, ok := a.st.Games[id]
		if !ok {
			return &abci.QueryResponse{Code: codeValidation, Log: "game not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(g)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/stats/"):
		addr := strings.TrimPrefix(path, "/stats/")
		ps := a.st.Stats[addr]
		if ps == nil {
			ps = &state.PlayerStats{}
		}
		b, _ := json.Marshal(ps)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/config":
		b, _ := json.Marshal(a.st.Config)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/totals":
		b, _ := json.Marshal(map[string]any{
			"totalStaked":      a.st.TotalStaked,
			"totalGamesPlayed": a.st.TotalGamesPlayed,
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: codeValidation, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func (a *DuelApp) deliverTx(txBytes []byte, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: codeValidation, Log: err.Error()}
	}

	// Staged execution: every tx runs against a clone, adopted only on
	// success. A failed operation has no observable effect at all, including
	// failed external transfers mid-settlement.
	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: codeInternal, Log: err.Error()}
	}
	res, err := applyTx(staged, env, nowUnix)
	if err != nil {
		return &abci.ExecTxResult{Code: resultCode(err), Log: err.Error()}
	}
	a.st = staged
	return res
}

func applyTx(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	switch env.Type {
	case "bank/mint":
		// v0 localnet faucet.
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad bank/mint value")
		}
		if msg.To == "" || msg.Amount == 0 {
			return nil, fmt.Errorf("missing to/amount")
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, err
		}
		return okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		}), nil

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad bank/send value")
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return nil, fmt.Errorf("missing from/to/amount")
		}
		// v0: sends are authenticated once the sender has registered a key.
		if len(st.AccountKeys[msg.From]) != 0 {
			if err := requireAccountAuth(st, env, msg.From); err != nil {
				return nil, err
			}
			if err := consumeTxNonce(st, env); err != nil {
				return nil, err
			}
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return nil, err
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, err
		}
		return okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		}), nil

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad auth/register_account value")
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return nil, err
		}
		if err := consumeTxNonce(st, env); err != nil {
			return nil, err
		}
		if existing := st.AccountKeys[msg.Account]; len(existing) != 0 && !bytes.Equal(existing, msg.PubKey) {
			return nil, fmt.Errorf("account pubKey mismatch for %q", msg.Account)
		}
		st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
		return okEvent("AccountRegistered", map[string]string{
			"account": msg.Account,
		}), nil

	case "duel/create":
		var msg codec.DuelCreateTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad duel/create value")
		}
		return newDuelEnv(st).createGame(msg, nowUnix)

	case "duel/join":
		var msg codec.DuelJoinTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad duel/join value")
		}
		return newDuelEnv(st).joinGame(msg, nowUnix)

	case "duel/submit":
		var msg codec.DuelSubmitTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad duel/submit value")
		}
		return newDuelEnv(st).submitResult(msg, nowUnix)

	case "duel/cancel":
		var msg codec.DuelCancelTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad duel/cancel value")
		}
		return newDuelEnv(st).cancelGame(msg)

	case "duel/claim_timeout":
		var msg codec.DuelClaimTimeoutTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad duel/claim_timeout value")
		}
		return newDuelEnv(st).claimTimeout(msg, nowUnix)

	case "admin/set_fee":
		var msg codec.AdminSetFeeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad admin/set_fee value")
		}
		return adminSetFee(st, env, msg)

	case "admin/set_fee_recipient":
		var msg codec.AdminSetFeeRecipientTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad admin/set_fee_recipient value")
		}
		return adminSetFeeRecipient(st, env, msg)

	case "admin/add_stake_tier":
		var msg codec.AdminAddStakeTierTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad admin/add_stake_tier value")
		}
		return adminAddStakeTier(st, env, msg)

	case "admin/remove_stake_tier":
		var msg codec.AdminRemoveStakeTierTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad admin/remove_stake_tier value")
		}
		return adminRemoveStakeTier(st, env, msg)

	default:
		return nil, fmt.Errorf("unknown tx type: %s", env.Type)
	}
}

func eventOf(typ string, attrs map[string]string) *abci.Event {
	ev := &abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return ev
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{*eventOf(typ, attrs)},
	}
}
