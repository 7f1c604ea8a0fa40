package ledger

import (
	"errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrWriteProtection     = errors.New("write protection")
	ErrDepth               = errors.New("max call depth exceeded")
	ErrContractCollision   = errors.New("contract address collision")
	ErrNotBytecoder        = errors.New("contract has no bytecode identity")
	ErrUnknownMethod       = errors.New("unknown method")
	ErrNonPayable          = errors.New("method is not payable")
	ErrMalformedInput      = errors.New("malformed call input")
	ErrNoReceive           = errors.New("contract does not accept plain transfers")
	ErrNotAdmitted         = errors.New("transaction not admitted")
	ErrContractPanic       = errors.New("contract panicked")
)

// RevertError is a contract-level failure carrying a human readable reason.
// Contracts declare their reverts as package level values so callers can match
// them with errors.Is no matter how many frames they crossed.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// Revert returns a new revert error with the given reason.
func Revert(reason string) error {
	return &RevertError{Reason: reason}
}

// RevertReason extracts the reason of the first revert in err's chain.
func RevertReason(err error) (string, bool) {
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev.Reason, true
	}
	return "", false
}
