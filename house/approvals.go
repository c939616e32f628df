package house

import "github.com/leviathan-news/auction-block/token"

// ApprovalLevel is the permission a principal grants a delegate over their
// own funds. Levels are granted and revoked only by the principal; there is
// no admin override.
type ApprovalLevel uint8

const (
	ApprovalNone ApprovalLevel = iota
	ApprovalBidOnly
	ApprovalWithdrawOnly
	ApprovalBidAndWithdraw
)

// CanBid reports whether the level permits bidding on the principal's behalf.
func (l ApprovalLevel) CanBid() bool {
	return l == ApprovalBidOnly || l == ApprovalBidAndWithdraw
}

// CanWithdraw reports whether the level permits withdrawing the principal's
// pending returns.
func (l ApprovalLevel) CanWithdraw() bool {
	return l == ApprovalWithdrawOnly || l == ApprovalBidAndWithdraw
}

// Valid reports whether the level is one of the four defined values.
func (l ApprovalLevel) Valid() bool {
	return l <= ApprovalBidAndWithdraw
}

func (l ApprovalLevel) String() string {
	switch l {
	case ApprovalNone:
		return "none"
	case ApprovalBidOnly:
		return "bid-only"
	case ApprovalWithdrawOnly:
		return "withdraw-only"
	case ApprovalBidAndWithdraw:
		return "bid-and-withdraw"
	}
	return "unknown"
}

type approvalKey struct {
	owner    token.Account
	delegate token.Account
}

// SetApprovedCaller grants or revokes a delegation level from the principal
// to the delegate. Only the principal's own table entry is touched.
func (h *House) SetApprovedCaller(principal, delegate token.Account, level ApprovalLevel) error {
	if !level.Valid() {
		return errInvalid("unknown approval level")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	key := approvalKey{owner: principal, delegate: delegate}
	if level == ApprovalNone {
		delete(h.approvals, key)
		return nil
	}
	h.approvals[key] = level
	return nil
}

// ApprovedCaller returns the current delegation level.
func (h *House) ApprovedCaller(principal, delegate token.Account) ApprovalLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.approvals[approvalKey{owner: principal, delegate: delegate}]
}

// CheckCaller is the capability check for delegated calls: caller may act
// for principal when they are the principal, the approved directory, or hold
// a level satisfying permit. Levels are re-read on every call.
func CheckCaller(level ApprovalLevel, permit ApprovalLevel) bool {
	switch permit {
	case ApprovalBidOnly:
		return level.CanBid()
	case ApprovalWithdrawOnly:
		return level.CanWithdraw()
	}
	return false
}

// canActFor evaluates CheckCaller against the house's own table. Lock held.
func (h *House) canActFor(caller, principal token.Account, permit ApprovalLevel) bool {
	if caller == principal {
		return true
	}
	if h.approvedDirectory != "" && caller == h.approvedDirectory {
		return true
	}
	return CheckCaller(h.approvals[approvalKey{owner: principal, delegate: caller}], permit)
}
