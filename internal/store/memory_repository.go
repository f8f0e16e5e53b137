package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
)

// MemoryRepository keeps all state in process memory. A single mutex
// serializes writers, which gives the same guarantees as the row locks used
// by PostgresRepository.
type MemoryRepository struct {
	mu          sync.RWMutex
	donors      map[uuid.UUID]domain.Donor
	donorOrder  []uuid.UUID
	ledger      map[uuid.UUID][]domain.LedgerEntry
	pledges     map[uuid.UUID]domain.Pledge
	redemptions map[uuid.UUID]domain.Redemption
	codes       map[string]uuid.UUID
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		donors:      make(map[uuid.UUID]domain.Donor),
		ledger:      make(map[uuid.UUID][]domain.LedgerEntry),
		pledges:     make(map[uuid.UUID]domain.Pledge),
		redemptions: make(map[uuid.UUID]domain.Redemption),
		codes:       make(map[string]uuid.UUID),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) CreateDonor(_ context.Context, donor *domain.Donor, welcome domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if donor.ID == uuid.Nil {
		donor.ID = uuid.New()
	}
	if donor.CreatedAt.IsZero() {
		donor.CreatedAt = r.now()
	}
	if _, exists := r.donors[donor.ID]; !exists {
		r.donorOrder = append(r.donorOrder, donor.ID)
	}
	r.donors[donor.ID] = *donor
	welcome.DonorID = donor.ID
	r.ledger[donor.ID] = append(r.ledger[donor.ID], welcome)
	return nil
}

func (r *MemoryRepository) FindDonorByID(_ context.Context, donorID uuid.UUID) (*domain.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.donors[donorID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListDonors(_ context.Context) ([]domain.Donor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Donor, 0, len(r.donorOrder))
	for _, id := range r.donorOrder {
		out = append(out, r.donors[id])
	}
	return out, nil
}

func (r *MemoryRepository) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donors[entry.DonorID]; !ok {
		return ErrNotFound
	}
	r.ledger[entry.DonorID] = append(r.ledger[entry.DonorID], entry)
	return nil
}

func (r *MemoryRepository) ListLedgerEntries(_ context.Context, donorID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.donors[donorID]; !ok {
		return nil, ErrNotFound
	}
	entries := r.ledger[donorID]
	out := make([]domain.LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *MemoryRepository) Balance(_ context.Context, donorID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.donors[donorID]; !ok {
		return 0, ErrNotFound
	}
	return domain.Balance(r.ledger[donorID]), nil
}

func (r *MemoryRepository) AvailableBalance(_ context.Context, donorID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.donors[donorID]; !ok {
		return 0, ErrNotFound
	}
	return r.availableLocked(donorID), nil
}

func (r *MemoryRepository) availableLocked(donorID uuid.UUID) int64 {
	available := domain.Balance(r.ledger[donorID])
	for _, red := range r.redemptions {
		if red.DonorID == donorID && red.Status == domain.RedemptionStaged {
			available -= red.Cost
		}
	}
	return available
}

func (r *MemoryRepository) StageRedemption(_ context.Context, redemption *domain.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donors[redemption.DonorID]; !ok {
		return ErrNotFound
	}
	if _, taken := r.codes[redemption.Code]; taken {
		return ErrDuplicateCode
	}
	if r.availableLocked(redemption.DonorID) < redemption.Cost {
		return ErrInsufficientBalance
	}
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	now := r.now()
	redemption.Status = domain.RedemptionStaged
	redemption.CreatedAt = now
	redemption.UpdatedAt = now
	r.redemptions[redemption.ID] = *redemption
	r.codes[redemption.Code] = redemption.ID
	return nil
}

func (r *MemoryRepository) FinalizeRedemption(_ context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	red, ok := r.redemptions[redemptionID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if red.Status != domain.RedemptionStaged {
		return nil, nil, ErrInvalidStatus
	}
	entry := domain.NewLedgerEntry(red.DonorID, RedeemedDescription(red.ItemTitle), -red.Cost)
	r.ledger[red.DonorID] = append(r.ledger[red.DonorID], entry)
	red.Status = domain.RedemptionPending
	red.UpdatedAt = r.now()
	r.redemptions[redemptionID] = red
	return &red, &entry, nil
}

func (r *MemoryRepository) DiscardRedemption(_ context.Context, redemptionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	red, ok := r.redemptions[redemptionID]
	if !ok {
		return ErrNotFound
	}
	if red.Status != domain.RedemptionStaged {
		return ErrInvalidStatus
	}
	delete(r.redemptions, redemptionID)
	delete(r.codes, red.Code)
	return nil
}

func (r *MemoryRepository) ReleaseStaleRedemptions(_ context.Context, stagedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released int64
	for id, red := range r.redemptions {
		if red.Status == domain.RedemptionStaged && red.CreatedAt.Before(stagedBefore) {
			delete(r.redemptions, id)
			delete(r.codes, red.Code)
			released++
		}
	}
	return released, nil
}

func (r *MemoryRepository) FindRedemptionByID(_ context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	red, ok := r.redemptions[redemptionID]
	if !ok || red.Status == domain.RedemptionStaged {
		return nil, ErrNotFound
	}
	return &red, nil
}

func (r *MemoryRepository) ListRedemptions(_ context.Context, filter RedemptionFilter) ([]domain.Redemption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Redemption, 0)
	for _, red := range r.redemptions {
		if red.Status == domain.RedemptionStaged {
			continue
		}
		if filter.DonorID != nil && red.DonorID != *filter.DonorID {
			continue
		}
		if filter.Status != "" && red.Status != filter.Status {
			continue
		}
		out = append(out, red)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) FulfillRedemption(_ context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	red, ok := r.redemptions[redemptionID]
	if !ok || red.Status == domain.RedemptionStaged {
		return nil, ErrNotFound
	}
	if red.Status != domain.RedemptionPending {
		return nil, ErrInvalidStatus
	}
	red.Status = domain.RedemptionFulfilled
	red.UpdatedAt = r.now()
	r.redemptions[redemptionID] = red
	return &red, nil
}

func (r *MemoryRepository) RejectRedemption(_ context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	red, ok := r.redemptions[redemptionID]
	if !ok || red.Status == domain.RedemptionStaged {
		return nil, nil, ErrNotFound
	}
	if red.Status != domain.RedemptionPending {
		return nil, nil, ErrInvalidStatus
	}
	entry := domain.NewLedgerEntry(red.DonorID, RefundDescription(red.ItemTitle), red.Cost)
	r.ledger[red.DonorID] = append(r.ledger[red.DonorID], entry)
	red.Status = domain.RedemptionRejected
	red.UpdatedAt = r.now()
	r.redemptions[redemptionID] = red
	return &red, &entry, nil
}

func (r *MemoryRepository) CreatePledge(_ context.Context, pledge *domain.Pledge, credit domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.donors[pledge.DonorID]; !ok {
		return ErrNotFound
	}
	if pledge.ID == uuid.Nil {
		pledge.ID = uuid.New()
	}
	now := r.now()
	pledge.Status = domain.PledgeScheduled
	pledge.CreatedAt = now
	pledge.UpdatedAt = now
	r.pledges[pledge.ID] = *pledge
	r.ledger[pledge.DonorID] = append(r.ledger[pledge.DonorID], credit)
	return nil
}

func (r *MemoryRepository) FindPledgeByID(_ context.Context, pledgeID uuid.UUID) (*domain.Pledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pledges[pledgeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListPledges(_ context.Context, filter PledgeFilter) ([]domain.Pledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Pledge, 0)
	for _, p := range r.pledges {
		if filter.DonorID != nil && p.DonorID != *filter.DonorID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if !filter.ScheduledFrom.IsZero() && p.ScheduledFor.Before(filter.ScheduledFrom) {
			continue
		}
		if !filter.ScheduledUntil.IsZero() && !p.ScheduledFor.Before(filter.ScheduledUntil) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (r *MemoryRepository) transitionPledge(pledgeID uuid.UUID, to domain.PledgeStatus, entry domain.LedgerEntry) (*domain.Pledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pledges[pledgeID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != domain.PledgeScheduled {
		return nil, ErrInvalidStatus
	}
	p.Status = to
	p.UpdatedAt = r.now()
	r.pledges[pledgeID] = p
	r.ledger[p.DonorID] = append(r.ledger[p.DonorID], entry)
	return &p, nil
}

func (r *MemoryRepository) CancelPledge(_ context.Context, pledgeID uuid.UUID, penalty domain.LedgerEntry) (*domain.Pledge, error) {
	return r.transitionPledge(pledgeID, domain.PledgeCancelled, penalty)
}

func (r *MemoryRepository) CompletePledge(_ context.Context, pledgeID uuid.UUID, credit domain.LedgerEntry) (*domain.Pledge, error) {
	return r.transitionPledge(pledgeID, domain.PledgeCompleted, credit)
}
