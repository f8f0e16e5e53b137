package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

// ReferralDescription is the ledger text for a referral credit.
func ReferralDescription(friendName string) string { return "Refer a friend: " + friendName }

// DonorService covers registration, wallets, referrals and the admin
// redemption queue.
type DonorService struct {
	repo   store.Repository
	events events
	logger *zap.Logger
}

func NewDonorService(repo store.Repository, publisher rabbitmq.Publisher, logger *zap.Logger) *DonorService {
	logger = logger.With(zap.String("component", "donors"))
	return &DonorService{repo: repo, events: events{publisher: publisher, logger: logger}, logger: logger}
}

// Register creates a donor and credits the welcome bonus.
func (s *DonorService) Register(ctx context.Context, d domain.Donor) (*domain.Donor, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return nil, &domain.FieldError{Field: "name", Message: "is required"}
	}
	phone, err := notify.NormalizePhone(d.PhoneNumber)
	if err != nil {
		return nil, err
	}
	d.PhoneNumber = phone
	if strings.TrimSpace(d.KinPhone) != "" {
		kin, err := notify.NormalizePhone(d.KinPhone)
		if err != nil {
			return nil, &domain.FieldError{Field: "next_of_kin_phone", Message: "must be a valid phone number"}
		}
		d.KinPhone = kin
	}
	d.ID = uuid.New()

	welcome := domain.NewLedgerEntry(d.ID, domain.WelcomeBonusReason, domain.WelcomeBonusTokens)
	if err := s.repo.CreateDonor(ctx, &d, welcome); err != nil {
		return nil, fmt.Errorf("create donor: %w", err)
	}
	s.logger.Info("donor registered", zap.String("donor_id", d.ID.String()))
	s.events.ledger(ctx, welcome)
	return &d, nil
}

// Wallet returns the donor's balances with the ledger newest first.
func (s *DonorService) Wallet(ctx context.Context, donorID uuid.UUID) (*domain.Wallet, error) {
	entries, err := s.repo.ListLedgerEntries(ctx, donorID)
	if err != nil {
		return nil, err
	}
	available, err := s.repo.AvailableBalance(ctx, donorID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return &domain.Wallet{
		DonorID:   donorID,
		Balance:   domain.Balance(entries),
		Available: available,
		Entries:   entries,
	}, nil
}

// CreditReferral rewards the donor for referring friendName.
func (s *DonorService) CreditReferral(ctx context.Context, donorID uuid.UUID, friendName string) (*domain.LedgerEntry, error) {
	friendName = strings.TrimSpace(friendName)
	if friendName == "" {
		return nil, &domain.FieldError{Field: "friend_name", Message: "is required"}
	}
	entry := domain.NewLedgerEntry(donorID, ReferralDescription(friendName), domain.ReferralTokens)
	if err := s.repo.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.events.ledger(ctx, entry)
	return &entry, nil
}

// ListRedemptions returns issued redemptions for the admin view.
func (s *DonorService) ListRedemptions(ctx context.Context, filter store.RedemptionFilter) ([]domain.Redemption, error) {
	return s.repo.ListRedemptions(ctx, filter)
}

// FulfillRedemption marks a voucher as used at the facility or store.
func (s *DonorService) FulfillRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	red, err := s.repo.FulfillRedemption(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("redemption fulfilled", zap.String("redemption_id", red.ID.String()), zap.String("code", red.Code))
	return red, nil
}

// RejectRedemption voids a voucher and refunds the tokens.
func (s *DonorService) RejectRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	red, refund, err := s.repo.RejectRedemption(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("redemption rejected", zap.String("redemption_id", red.ID.String()), zap.Int64("refund", refund.Amount))
	s.events.ledger(ctx, *refund)
	return red, nil
}
