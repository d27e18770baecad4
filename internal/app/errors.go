package app

import "errors"

// Failure reasons surfaced to callers. Every operation either completes in
// full or aborts with one of these before anything is committed.
var (
	// Validation.
	ErrInvalidStakeTier = errors.New("invalid stake tier")
	ErrGameUnavailable  = errors.New("game unavailable")
	ErrSelfPlay         = errors.New("self play not allowed")
	ErrGameNotActive    = errors.New("game not active")
	ErrReactionTooFast  = errors.New("reaction too fast")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrCannotCancel     = errors.New("cannot cancel")
	ErrReentrantCall    = errors.New("reentrant call")

	// Timing.
	ErrMatchExpired   = errors.New("match expired")
	ErrGameTimedOut   = errors.New("game timed out")
	ErrNotTimedOutYet = errors.New("not timed out yet")

	// Authorization.
	ErrNotAPlayer   = errors.New("not a player")
	ErrNotCreator   = errors.New("not creator")
	ErrNotAdmin     = errors.New("not admin")
	ErrUnauthorized = errors.New("unauthorized")

	// Transfer: the external ledger reported failure.
	ErrTransferFailed = errors.New("transfer failed")
)

// ABCI result codes, grouped by failure class. Code 0 is success.
const (
	codeValidation uint32 = 1
	codeTiming     uint32 = 2
	codeAuth       uint32 = 3
	codeTransfer   uint32 = 4
	codeInternal   uint32 = 10
)

func resultCode(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrMatchExpired),
		errors.Is(err, ErrGameTimedOut),
		errors.Is(err, ErrNotTimedOutYet):
		return codeTiming
	case errors.Is(err, ErrNotAPlayer),
		errors.Is(err, ErrNotCreator),
		errors.Is(err, ErrNotAdmin),
		errors.Is(err, ErrUnauthorized):
		return codeAuth
	case errors.Is(err, ErrTransferFailed):
		return codeTransfer
	default:
		return codeValidation
	}
}
