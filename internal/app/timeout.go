package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"quickdraw/internal/codec"
	"quickdraw/internal/state"
)

// claimTimeout resolves an active game whose submission window has passed.
// Timeouts are evaluated against the claiming tx's block time; nothing is
// scheduled or polled.
func (e *duelEnv) claimTimeout(msg codec.DuelClaimTimeoutTx, nowUnix int64) (*abci.ExecTxResult, error) {
	if err := e.enter(msg.GameID); err != nil {
		return nil, err
	}
	defer e.leave(msg.GameID)

	g := e.st.Games[msg.GameID]
	if g == nil || g.Status != state.StatusActive {
		return nil, fmt.Errorf("%w: game %d", ErrGameNotActive, msg.GameID)
	}
	deadline, err := addInt64AndU64Checked(g.StartedAt, GameTimeoutSecs, "game deadline")
	if err != nil {
		return nil, err
	}
	if nowUnix <= deadline {
		return nil, fmt.Errorf("%w: now=%d deadline=%d", ErrNotTimedOutYet, nowUnix, deadline)
	}
	if !g.IsPlayer(msg.Player) {
		return nil, fmt.Errorf("%w: %s", ErrNotAPlayer, msg.Player)
	}

	if g.P1Submitted != g.P2Submitted {
		return e.expireWithDefaultWin(g)
	}
	// Neither submitted: a both-submitted game can't still be active, since
	// the second submission settles in the same call.
	return e.expireWithRefund(g)
}

// expireWithDefaultWin awards the pot to the only player who submitted, with
// the same fee math and the same mutate-then-transfer ordering as settlement.
func (e *duelEnv) expireWithDefaultWin(g *state.Game) (*abci.ExecTxResult, error) {
	winner, winMs := g.Player1, g.P1ReactionMs
	loser := g.Player2
	if g.P2Submitted {
		winner, winMs = g.Player2, g.P2ReactionMs
		loser = g.Player1
	}

	pot, err := addU64Checked(g.Stake, g.Stake, "pot")
	if err != nil {
		return nil, err
	}
	fee := feeAmount(pot, e.st.Config.FeeBps)
	payout := pot - fee

	g.Status = state.StatusExpired
	g.Winner = winner
	e.recordResolution(winner, loser, winMs)

	res := okEvent("GameExpired", map[string]string{
		"gameId":           fmt.Sprintf("%d", g.ID),
		"outcome":          "defaultWin",
		"winner":           winner,
		"payout":           fmt.Sprintf("%d", payout),
		"winnerReactionMs": fmt.Sprintf("%d", winMs),
	})
	evs, err := e.payOut(g.ID, winner, payout, fee)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

// expireWithRefund returns both stakes in full. No fee is charged; the game
// still counts as played for both participants.
func (e *duelEnv) expireWithRefund(g *state.Game) (*abci.ExecTxResult, error) {
	g.Status = state.StatusExpired
	e.st.PlayerStatsFor(g.Player1).GamesPlayed++
	e.st.PlayerStatsFor(g.Player2).GamesPlayed++
	e.st.TotalGamesPlayed++

	for _, p := range []string{g.Player1, g.Player2} {
		if !e.ledger.Transfer(p, g.Stake) {
			return nil, fmt.Errorf("%w: refund %d to %s", ErrTransferFailed, g.Stake, p)
		}
	}

	return okEvent("GameExpired", map[string]string{
		"gameId":     fmt.Sprintf("%d", g.ID),
		"outcome":    "refund",
		"refundEach": fmt.Sprintf("%d", g.Stake),
	}), nil
}
