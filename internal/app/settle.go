package app

import (
	"fmt"
	"math/bits"

	abci "github.com/cometbft/cometbft/abci/types"

	"quickdraw/internal/state"
)

// feeAmount computes floor(pot * bps / 10000) without overflowing on large
// pots. bps is capped far below 10000, so the 128-bit divide cannot trap.
func feeAmount(pot uint64, bps uint32) uint64 {
	if pot == 0 || bps == 0 {
		return 0
	}
	hi, lo := bits.Mul64(pot, uint64(bps))
	q, _ := bits.Div64(hi, lo, 10000)
	return q
}

// settle resolves an active game with both result slots filled. The fee rate
// is read from the current config here, at settlement time, so an admin fee
// change applies to games that were already active when it happened.
func (e *duelEnv) settle(g *state.Game) ([]abci.Event, error) {
	// Equal times favor player1. Deterministic tie-break, not an accident.
	winner, winMs := g.Player1, g.P1ReactionMs
	loser := g.Player2
	if g.P2ReactionMs < g.P1ReactionMs {
		winner, winMs = g.Player2, g.P2ReactionMs
		loser = g.Player1
	}

	pot, err := addU64Checked(g.Stake, g.Stake, "pot")
	if err != nil {
		return nil, err
	}
	fee := feeAmount(pot, e.st.Config.FeeBps)
	payout := pot - fee

	// Every local mutation lands before the ledger is touched. A reentrant
	// transfer callback observes an already-settled game.
	g.Status = state.StatusSettled
	g.Winner = winner
	e.recordResolution(winner, loser, winMs)

	events := []abci.Event{*eventOf("GameSettled", map[string]string{
		"gameId":       fmt.Sprintf("%d", g.ID),
		"winner":       winner,
		"payout":       fmt.Sprintf("%d", payout),
		"p1ReactionMs": fmt.Sprintf("%d", g.P1ReactionMs),
		"p2ReactionMs": fmt.Sprintf("%d", g.P2ReactionMs),
	})}
	evs, err := e.payOut(g.ID, winner, payout, fee)
	if err != nil {
		return nil, err
	}
	return append(events, evs...), nil
}

// payOut moves the payout and, when configured, the fee. Both transfers are
// fatal on failure: no partial settlement may persist.
func (e *duelEnv) payOut(gameID uint64, winner string, payout, fee uint64) ([]abci.Event, error) {
	if !e.ledger.Transfer(winner, payout) {
		return nil, fmt.Errorf("%w: payout %d to %s", ErrTransferFailed, payout, winner)
	}
	var events []abci.Event
	recipient := e.st.Config.FeeRecipient
	if fee > 0 && recipient != "" {
		if !e.ledger.Transfer(recipient, fee) {
			return nil, fmt.Errorf("%w: fee %d to %s", ErrTransferFailed, fee, recipient)
		}
		events = append(events, *eventOf("FeePaid", map[string]string{
			"gameId":    fmt.Sprintf("%d", gameID),
			"recipient": recipient,
			"amount":    fmt.Sprintf("%d", fee),
		}))
	}
	return events, nil
}

// recordResolution updates the derived aggregates for a resolution that
// produced a winner. Aggregates only move inside settlement/timeout paths.
func (e *duelEnv) recordResolution(winner, loser string, winMs uint64) {
	ws := e.st.PlayerStatsFor(winner)
	ws.Wins++
	ws.GamesPlayed++
	if ws.BestReactionMs == 0 || winMs < ws.BestReactionMs {
		ws.BestReactionMs = winMs
	}
	e.st.PlayerStatsFor(loser).GamesPlayed++
	e.st.TotalGamesPlayed++
}
