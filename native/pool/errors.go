package pool

import (
	"errors"

	"coverpool/core/state"
	nativecommon "coverpool/native/common"
	"coverpool/native/fixedpoint"
)

// Kind classifies a rejected operation.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation is a caller error detected before any state is read.
	KindValidation
	// KindState is an action outside the current state machine window.
	KindState
	// KindInvariant is an operation that would break a ledger invariant.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a rejected operation carrying a stable reason code.
type Error struct {
	Kind   Kind
	Reason string
	msg    string
}

func (e *Error) Error() string { return "pool: " + e.msg }

func newError(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, msg: msg}
}

var (
	ErrAmount       = newError(KindValidation, "AMOUNT", "amount must be positive")
	ErrReceiver     = newError(KindValidation, "RECEIVER", "receiver must not be empty")
	ErrAddress      = newError(KindValidation, "ADDRESS", "address must not be empty")
	ErrInit         = newError(KindValidation, "INIT", "asset not initialized")
	ErrToken        = newError(KindValidation, "TOKEN", "token not registered")
	ErrDisabled     = newError(KindValidation, "DISABLED", "asset disabled")
	ErrProtocol     = newError(KindValidation, "PROTOCOL", "protocol not covered")
	ErrWhitelist    = newError(KindValidation, "WHITELIST", "protocol not whitelisted for asset")
	ErrLength       = newError(KindValidation, "LENGTH", "mismatched or empty batch")
	ErrDuplicate    = newError(KindValidation, "DUPLICATE", "duplicate entry")
	ErrUnauthorized = newError(KindValidation, "UNAUTHORIZED", "caller not authorized")
	ErrIndex        = newError(KindValidation, "INDEX", "withdrawal index out of range")
	ErrFee          = newError(KindValidation, "FEE", "fraction exceeds one")

	ErrNoStake            = newError(KindState, "NO_STAKE", "no claim supply")
	ErrTimelockActive     = newError(KindState, "TIMELOCK_ACTIVE", "timelock still active")
	ErrTimelockExpired    = newError(KindState, "TIMELOCK_EXPIRED", "timelock expired")
	ErrClaimPeriodExpired = newError(KindState, "CLAIMPERIOD_EXPIRED", "claim period expired")
	ErrClaimPeriodActive  = newError(KindState, "CLAIMPERIOD_ACTIVE", "claim period still open")
	ErrWithdrawNotActive  = newError(KindState, "WITHDRAW_NOT_ACTIVE", "withdrawal not active")
	ErrAlreadyInit        = newError(KindState, "ALREADY_INIT", "initial weight already set")
	ErrAlreadyInit2       = newError(KindState, "ALREADY_INIT_2", "weights already distributed to assets")
	ErrBeneficiaryUnset   = newError(KindState, "BENEFICIARY_UNSET", "beneficiary not configured")
	ErrActiveWeight       = newError(KindState, "ACTIVE_WEIGHT", "asset still carries yield weight")
	ErrStillEnabled       = newError(KindState, "ENABLED", "asset still enabled")
	ErrActiveProtocols    = newError(KindState, "ACTIVE_PROTOCOLS", "asset still has protocols")
	ErrBalance            = newError(KindState, "BALANCE", "pool still holds balance")
	ErrSupply             = newError(KindState, "SUPPLY", "claim supply outstanding")

	ErrSum                 = newError(KindInvariant, "SUM", "weights must sum to one")
	ErrDebt                = newError(KindInvariant, "DEBT", "protocol premium outstanding")
	ErrPoolDrained         = newError(KindInvariant, "POOL_DRAINED", "stakers balance is zero while claims exist")
	ErrInsufficientBalance = newError(KindInvariant, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrClockRegression     = newError(KindInvariant, "CLOCK", "block height must not decrease")
)

var (
	errNilEngine = errors.New("pool engine: not configured")
	errNilState  = errors.New("pool engine: state not configured")
)

// KindOf classifies err. Arithmetic failures are invariant violations.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, fixedpoint.ErrOverflow), errors.Is(err, fixedpoint.ErrUnderflow),
		errors.Is(err, fixedpoint.ErrDivisionByZero), errors.Is(err, state.ErrInsufficientBalance):
		return KindInvariant
	case errors.Is(err, nativecommon.ErrModulePaused):
		return KindState
	}
	return KindUnknown
}

// ReasonOf returns the reason code carried by err, or "" for foreign errors.
func ReasonOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	switch {
	case errors.Is(err, fixedpoint.ErrOverflow):
		return "OVERFLOW"
	case errors.Is(err, fixedpoint.ErrUnderflow), errors.Is(err, state.ErrInsufficientBalance):
		return ErrInsufficientBalance.Reason
	case errors.Is(err, fixedpoint.ErrDivisionByZero):
		return "DIVISION_BY_ZERO"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "PAUSED"
	}
	return ""
}
