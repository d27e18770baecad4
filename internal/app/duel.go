package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

// Contract timing and input floors. One time unit is one second of block
// time; reaction times are milliseconds.
const (
	GameTimeoutSecs  uint64 = 60  // result-submission window after a game goes active
	MatchTimeoutSecs uint64 = 600 // join window after creation
	MinReactionMs    uint64 = 100 // bot-resistance floor; 0 is never a valid time
)

// duelEnv carries one operation's execution context: the staged state, the
// value ledger, and the per-call non-reentrant guard. deliverTx builds a
// fresh env per tx; tests build one directly to substitute the ledger.
type duelEnv struct {
	st     *state.State
	ledger Ledger
	busy   map[uint64]bool
}

func newDuelEnv(st *state.State) *duelEnv {
	return &duelEnv{st: st, ledger: bankLedger{st: st}, busy: map[uint64]bool{}}
}

// enter holds the non-reentrant lock for a game for the operation's
// lifetime. A ledger that calls back into the engine mid-transfer trips it.
func (e *duelEnv) enter(id uint64) error {
	if e.busy[id] {
		return fmt.Errorf("%w: game %d", ErrReentrantCall, id)
	}
	e.busy[id] = true
	return nil
}

func (e *duelEnv) leave(id uint64) { delete(e.busy, id) }

func (e *duelEnv) createGame(msg codec.DuelCreateTx, nowUnix int64) (*abci.ExecTxResult, error) {
	if msg.Player == "" {
		return nil, fmt.Errorf("missing player")
	}
	if !e.st.Config.HasTier(msg.Stake) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStakeTier, msg.Stake)
	}
	totalStaked, err := addU64Checked(e.st.TotalStaked, msg.Stake, "total staked")
	if err != nil {
		return nil, err
	}
	if !e.ledger.TransferFrom(msg.Player, msg.Stake) {
		return nil, fmt.Errorf("%w: escrow %d from %s", ErrTransferFailed, msg.Stake, msg.Player)
	}

	id := e.st.NextGameID
	e.st.NextGameID++
	e.st.TotalStaked = totalStaked
	e.st.Games[id] = &state.Game{
		ID:        id,
		Player1:   msg.Player,
		Stake:     msg.Stake,
		CreatedAt: nowUnix,
		Status:    state.StatusWaitingForOpponent,
	}

	return okEvent("GameCreated", map[string]string{
		"gameId": fmt.Sprintf("%d", id),
		"player": msg.Player,
		"stake":  fmt.Sprintf("%d", msg.Stake),
	}), nil
}

func (e *duelEnv) joinGame(msg codec.DuelJoinTx, nowUnix int64) (*abci.ExecTxResult, error) {
	if msg.Player == "" {
		return nil, fmt.Errorf("missing player")
	}
	if err := e.enter(msg.GameID); err != nil {
		return nil, err
	}
	defer e.leave(msg.GameID)

	g := e.st.Games[msg.GameID]
	if g == nil || g.Status != state.StatusWaitingForOpponent {
		return nil, fmt.Errorf("%w: game %d", ErrGameUnavailable, msg.GameID)
	}
	if msg.Player == g.Player1 {
		return nil, fmt.Errorf("%w: %s", ErrSelfPlay, msg.Player)
	}
	joinDeadline, err := addInt64AndU64Checked(g.CreatedAt, MatchTimeoutSecs, "join deadline")
	if err != nil {
		return nil, err
	}
	if nowUnix > joinDeadline {
		return nil, fmt.Errorf("%w: now=%d deadline=%d", ErrMatchExpired, nowUnix, joinDeadline)
	}
	totalStaked, err := addU64Checked(e.st.TotalStaked, g.Stake, "total staked")
	if err != nil {
		return nil, err
	}
	if !e.ledger.TransferFrom(msg.Player, g.Stake) {
		return nil, fmt.Errorf("%w: escrow %d from %s", ErrTransferFailed, g.Stake, msg.Player)
	}

	g.Player2 = msg.Player
	g.StartedAt = nowUnix
	g.Status = state.StatusActive
	e.st.TotalStaked = totalStaked

	return okEvent("GameJoined", map[string]string{
		"gameId": fmt.Sprintf("%d", g.ID),
		"player": msg.Player,
		"stake":  fmt.Sprintf("%d", g.Stake),
	}), nil
}

func (e *duelEnv) submitResult(msg codec.DuelSubmitTx, nowUnix int64) (*abci.ExecTxResult, error) {
	if err := e.enter(msg.GameID); err != nil {
		return nil, err
	}
	defer e.leave(msg.GameID)

	g := e.st.Games[msg.GameID]
	if g == nil || g.Status != state.StatusActive {
		return nil, fmt.Errorf("%w: game %d", ErrGameNotActive, msg.GameID)
	}
	if !g.IsPlayer(msg.Player) {
		return nil, fmt.Errorf("%w: %s", ErrNotAPlayer, msg.Player)
	}
	if msg.ReactionMs < MinReactionMs {
		return nil, fmt.Errorf("%w: %dms (min %dms)", ErrReactionTooFast, msg.ReactionMs, MinReactionMs)
	}
	submitDeadline, err := addInt64AndU64Checked(g.StartedAt, GameTimeoutSecs, "submit deadline")
	if err != nil {
		return nil, err
	}
	if nowUnix > submitDeadline {
		return nil, fmt.Errorf("%w: now=%d deadline=%d", ErrGameTimedOut, nowUnix, submitDeadline)
	}

	switch msg.Player {
	case g.Player1:
		if g.P1Submitted {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySubmitted, msg.Player)
		}
		g.P1ReactionMs = msg.ReactionMs
		g.P1Submitted = true
	default:
		if g.P2Submitted {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySubmitted, msg.Player)
		}
		g.P2ReactionMs = msg.ReactionMs
		g.P2Submitted = true
	}

	res := okEvent("ResultSubmitted", map[string]string{
		"gameId":     fmt.Sprintf("%d", g.ID),
		"player":     msg.Player,
		"reactionMs": fmt.Sprintf("%d", msg.ReactionMs),
	})

	// Second result settles in the same call; there is no separate settle
	// step a caller could (or would need to) invoke.
	if g.P1Submitted && g.P2Submitted {
		evs, err := e.settle(g)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, evs...)
	}
	return res, nil
}

func (e *duelEnv) cancelGame(msg codec.DuelCancelTx) (*abci.ExecTxResult, error) {
	if err := e.enter(msg.GameID); err != nil {
		return nil, err
	}
	defer e.leave(msg.GameID)

	g := e.st.Games[msg.GameID]
	if g == nil || g.Status != state.StatusWaitingForOpponent {
		return nil, fmt.Errorf("%w: game %d", ErrCannotCancel, msg.GameID)
	}
	if msg.Player != g.Player1 {
		return nil, fmt.Errorf("%w: %s", ErrNotCreator, msg.Player)
	}

	// Status flips before the refund leaves escrow.
	g.Status = state.StatusCancelled

	if !e.ledger.Transfer(g.Player1, g.Stake) {
		return nil, fmt.Errorf("%w: refund %d to %s", ErrTransferFailed, g.Stake, g.Player1)
	}

	return okEvent("GameCancelled", map[string]string{
		"gameId":   fmt.Sprintf("%d", g.ID),
		"player":   g.Player1,
		"refunded": fmt.Sprintf("%d", g.Stake),
	}), nil
}
