/**
 * @description
 * This file defines the `Repository` interface: every data access operation
 * the rewards service needs. PostgreSQL backs production; the in-memory
 * implementation serves tests and single-process development.
 *
 * @notes
 * - The ledger is append-only. No method updates or deletes a ledger entry.
 * - Redemptions are guarded here, not only in the workflow: staging a
 *   redemption fails with ErrInsufficientBalance when the available balance
 *   (ledger sum minus staged holds) is below the cost.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrDuplicateCode       = errors.New("redemption code already issued")
	ErrInvalidStatus       = errors.New("record is not in a state that allows this change")
)

// PledgeFilter narrows ListPledges. Zero values match everything.
type PledgeFilter struct {
	DonorID        *uuid.UUID
	Status         domain.PledgeStatus
	ScheduledFrom  time.Time
	ScheduledUntil time.Time
}

// RedemptionFilter narrows ListRedemptions. Staged records are never listed.
type RedemptionFilter struct {
	DonorID *uuid.UUID
	Status  domain.RedemptionStatus
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Donors. CreateDonor stores the donor and its welcome credit atomically.
	CreateDonor(ctx context.Context, donor *domain.Donor, welcome domain.LedgerEntry) error
	FindDonorByID(ctx context.Context, donorID uuid.UUID) (*domain.Donor, error)
	ListDonors(ctx context.Context) ([]domain.Donor, error)

	// Ledger
	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, donorID uuid.UUID) ([]domain.LedgerEntry, error)
	Balance(ctx context.Context, donorID uuid.UUID) (int64, error)
	AvailableBalance(ctx context.Context, donorID uuid.UUID) (int64, error)

	// Redemptions
	StageRedemption(ctx context.Context, redemption *domain.Redemption) error
	FinalizeRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error)
	DiscardRedemption(ctx context.Context, redemptionID uuid.UUID) error
	// ReleaseStaleRedemptions drops staged holds older than stagedBefore,
	// left behind by a crash between staging and finalize.
	ReleaseStaleRedemptions(ctx context.Context, stagedBefore time.Time) (int64, error)
	FindRedemptionByID(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error)
	ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]domain.Redemption, error)
	FulfillRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error)
	RejectRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error)

	// Pledges. Each status change and its ledger entry commit together.
	CreatePledge(ctx context.Context, pledge *domain.Pledge, credit domain.LedgerEntry) error
	FindPledgeByID(ctx context.Context, pledgeID uuid.UUID) (*domain.Pledge, error)
	ListPledges(ctx context.Context, filter PledgeFilter) ([]domain.Pledge, error)
	CancelPledge(ctx context.Context, pledgeID uuid.UUID, penalty domain.LedgerEntry) (*domain.Pledge, error)
	CompletePledge(ctx context.Context, pledgeID uuid.UUID, credit domain.LedgerEntry) (*domain.Pledge, error)
}

// RedeemedDescription is the ledger text for a finalized redemption.
func RedeemedDescription(itemTitle string) string {
	return "Redeemed: " + itemTitle
}

// RefundDescription is the ledger text for a rejected redemption.
func RefundDescription(itemTitle string) string {
	return "Refund: " + itemTitle
}
