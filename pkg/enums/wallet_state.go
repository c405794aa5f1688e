package enums

import "fmt"

// WalletState tracks whether an order's wallet amount has moved.
// RESERVED means the balance was verified but not yet decremented.
type WalletState string

const (
	WalletStateUncharged WalletState = "uncharged"
	WalletStateReserved  WalletState = "reserved"
	WalletStateCharged   WalletState = "charged"
	WalletStateReleased  WalletState = "released"
)

var validWalletStates = []WalletState{
	WalletStateUncharged,
	WalletStateReserved,
	WalletStateCharged,
	WalletStateReleased,
}

var walletStateTransitions = map[WalletState][]WalletState{
	WalletStateUncharged: {WalletStateReserved, WalletStateCharged},
	WalletStateReserved:  {WalletStateCharged, WalletStateReleased},
	WalletStateCharged:   {WalletStateReleased},
}

// String implements fmt.Stringer.
func (w WalletState) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletState.
func (w WalletState) IsValid() bool {
	for _, candidate := range validWalletStates {
		if candidate == w {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of w.
func (w WalletState) CanTransitionTo(next WalletState) bool {
	for _, candidate := range walletStateTransitions[w] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseWalletState converts raw input into a WalletState.
func ParseWalletState(value string) (WalletState, error) {
	for _, candidate := range validWalletStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet state %q", value)
}
