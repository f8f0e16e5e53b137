package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the herodrop.events exchange.
const (
	EventLedgerCredited      = "ledger.credited"
	EventLedgerDebited       = "ledger.debited"
	EventRedemptionCompleted = "redemption.completed"
	EventPledgeCompleted     = "pledge.completed"
	EventPledgeCancelled     = "pledge.cancelled"
	EventDonationRecorded    = "donation.recorded"
)

type LedgerEvent struct {
	DonorID     uuid.UUID `json:"donor_id"`
	EntryID     uuid.UUID `json:"entry_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type RedemptionCompletedEvent struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	DonorID      uuid.UUID `json:"donor_id"`
	Code         string    `json:"code"`
	ItemTitle    string    `json:"item_title"`
	Cost         int64     `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

type PledgeEvent struct {
	PledgeID  uuid.UUID    `json:"pledge_id"`
	DonorID   uuid.UUID    `json:"donor_id"`
	Status    PledgeStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// DonationRecordedEvent is published by the blood bank when a donation is logged.
type DonationRecordedEvent struct {
	PledgeID uuid.UUID `json:"pledge_id"`
}
