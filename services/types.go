package services

import (
	"time"

	"github.com/leviathan-news/auction-block/house"
)

// SettlementRecord is the persisted outcome of one auction. Amounts are
// decimal strings so the full integer range survives the round trip.
type SettlementRecord struct {
	House        string    `json:"house"`
	AuctionID    uint64    `json:"auction_id"`
	Winner       string    `json:"winner"`
	Amount       string    `json:"amount"`
	Fee          string    `json:"fee"`
	Proceeds     string    `json:"proceeds"`
	Beneficiary  string    `json:"beneficiary"`
	AwardTokenID uint64    `json:"award_token_id,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

// NewSettlementRecord converts an engine settlement into its persisted form.
func NewSettlementRecord(houseName string, s house.Settlement, awardTokenID uint64) *SettlementRecord {
	return &SettlementRecord{
		House:        houseName,
		AuctionID:    s.AuctionID,
		Winner:       string(s.Winner),
		Amount:       s.Amount.String(),
		Fee:          s.Fee.String(),
		Proceeds:     s.Proceeds.String(),
		Beneficiary:  string(s.Beneficiary),
		AwardTokenID: awardTokenID,
		SettledAt:    s.SettledAt,
	}
}

// SettlementStore persists settlement records. Saving the same
// (house, auction) pair twice overwrites the earlier record.
type SettlementStore interface {
	SaveSettlement(rec *SettlementRecord) error
	LoadSettlements(houseName string) ([]*SettlementRecord, error)
	Close() error
}
