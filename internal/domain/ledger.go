/**
 * @description
 * Token ledger and redemption records.
 *
 * @notes
 * - Amounts are whole DamuTokens. Credits are positive, debits negative.
 * - The ledger is append-only. Reversals are new compensating entries.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TxType is the direction of a ledger entry.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// Standard ledger amounts.
const (
	WelcomeBonusTokens    int64 = 10
	PledgeTokens          int64 = 10
	CancellationPenalty   int64 = 10
	DonationTokens        int64 = 100
	ReferralTokens        int64 = 30
	WelcomeBonusReason          = "Welcome Bonus"
	CompletedDonationText       = "Completed blood donation"
)

// LedgerEntry is a single append-only token movement.
type LedgerEntry struct {
	ID          uuid.UUID `json:"id"`
	DonorID     uuid.UUID `json:"donor_id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Type        TxType    `json:"type"`
	CreatedAt   time.Time `json:"date"`
}

// NewLedgerEntry derives Type from the sign of amount.
func NewLedgerEntry(donorID uuid.UUID, description string, amount int64) LedgerEntry {
	t := TxCredit
	if amount < 0 {
		t = TxDebit
	}
	return LedgerEntry{
		ID:          uuid.New(),
		DonorID:     donorID,
		Description: description,
		Amount:      amount,
		Type:        t,
		CreatedAt:   time.Now().UTC(),
	}
}

// Balance sums the amounts of entries.
func Balance(entries []LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

// Wallet is a donor's balance together with their ledger history.
type Wallet struct {
	DonorID   uuid.UUID     `json:"donor_id"`
	Balance   int64         `json:"balance"`
	Available int64         `json:"available"`
	Entries   []LedgerEntry `json:"transactions"`
}

// RedemptionStatus tracks an issued voucher.
type RedemptionStatus string

const (
	// RedemptionStaged holds tokens while the confirmation SMS is dispatched.
	RedemptionStaged    RedemptionStatus = "staged"
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionRejected  RedemptionStatus = "rejected"
)

// Redemption is a confirmed exchange of tokens for a catalog item.
type Redemption struct {
	ID            uuid.UUID        `json:"id"`
	DonorID       uuid.UUID        `json:"donor_id"`
	Code          string           `json:"code"`
	ItemID        string           `json:"item_id"`
	ItemTitle     string           `json:"item_title"`
	Cost          int64            `json:"cost"`
	Location      string           `json:"location"`
	SuggestedTime string           `json:"suggested_time,omitempty"`
	Reasoning     string           `json:"reasoning,omitempty"`
	Status        RedemptionStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
