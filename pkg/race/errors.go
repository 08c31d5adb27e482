package race

import (
	"errors"
	"fmt"
)

// Engine validation errors. These are expected, recoverable outcomes of
// player input: the controller reports them to the offending sender and the
// phase stays open. Spinouts are not errors.
var (
	ErrWrongPhase     = errors.New("action does not apply to the current phase")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrMatchFinished  = errors.New("the race is over")
	ErrInvalidGear    = errors.New("invalid gear selection")
	ErrNoEngineHeat   = errors.New("no heat in engine")
	ErrInvalidCards   = errors.New("invalid card selection")
	ErrCooldownLimit  = errors.New("cooldown limit exceeded")
	ErrAlreadyBoosted = errors.New("already boosted this round")
	ErrNoSlipstream   = errors.New("no car to slipstream")
)

// SlotError attributes a batch validation failure to the slot whose action
// was rejected, so the controller can route the error to one sender while
// reopening the phase for everyone.
type SlotError struct {
	Slot int
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d: %v", e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}

// slotErr wraps err for the given slot.
func slotErr(slot int, err error) *SlotError {
	return &SlotError{Slot: slot, Err: err}
}
