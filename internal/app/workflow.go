/**
 * @description
 * The redemption workflow: a state machine over one donor's redemption dialog.
 *
 *   SelectingLocation --proceed--> GeneratingDetails --> ConfirmingRedemption --confirm--> Completed
 *          ^                                                   |
 *          +---------------------- back / failure -------------+
 *
 * @notes
 * - Begin refuses to open a session when the available balance is below the
 *   item cost; no session is stored in that case.
 * - Confirm stages the redemption (holding the tokens and reserving the code),
 *   composes and dispatches the SMS, and only then finalizes the debit. Any
 *   failure before finalize discards the staged record, so the ledger is
 *   unchanged and the session returns to SelectingLocation. A hold that is
 *   never released (crash mid-confirm) expires through the HoldSweeper.
 * - Redemption codes are display references, not secrets. Uniqueness is
 *   enforced by the repository and a colliding code is regenerated.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/advisor"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

const (
	maxCodeAttempts = 5
	rollbackTimeout = 5 * time.Second
)

// RedemptionCode builds a voucher reference from the first four characters of
// the item title and a suffix in [1000, 9999].
func RedemptionCode(title string, intn func(int) int) string {
	prefix := []rune(strings.ToUpper(strings.TrimSpace(title)))
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return fmt.Sprintf("%s-%d", string(prefix), 1000+intn(9000))
}

// Confirmation is the outcome of a successful Confirm.
type Confirmation struct {
	Session    domain.RedemptionSession `json:"session"`
	Redemption domain.Redemption        `json:"redemption"`
	Message    string                   `json:"sms_message"`
	Delivery   domain.DeliveryResult    `json:"delivery"`
}

// Workflow runs redemption sessions.
type Workflow struct {
	repo       store.Repository
	items      ItemCatalog
	locations  LocationResolver
	advisor    TimeAdvisor
	composer   MessageComposer
	dispatcher MessageDispatcher
	sessions   SessionStore
	events     events
	logger     *zap.Logger

	intn  func(int) int
	now   func() time.Time
	locks [64]sync.Mutex
}

// NewWorkflow creates a Workflow. publisher may be nil.
func NewWorkflow(
	repo store.Repository,
	items ItemCatalog,
	locations LocationResolver,
	timeAdvisor TimeAdvisor,
	composer MessageComposer,
	dispatcher MessageDispatcher,
	sessions SessionStore,
	publisher rabbitmq.Publisher,
	logger *zap.Logger,
) *Workflow {
	logger = logger.With(zap.String("component", "workflow"))
	return &Workflow{
		repo:       repo,
		items:      items,
		locations:  locations,
		advisor:    timeAdvisor,
		composer:   composer,
		dispatcher: dispatcher,
		sessions:   sessions,
		events:     events{publisher: publisher, logger: logger},
		logger:     logger,
		intn:       rand.IntN,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// lock serializes transitions of one session within this process.
func (w *Workflow) lock(id uuid.UUID) func() {
	m := &w.locks[id[0]%byte(len(w.locks))]
	m.Lock()
	return m.Unlock
}

// Begin opens a redemption dialog for itemID.
func (w *Workflow) Begin(ctx context.Context, donorID uuid.UUID, itemID string) (*domain.RedemptionSession, error) {
	item, ok := w.items.Item(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	available, err := w.repo.AvailableBalance(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if available < item.Cost {
		w.logger.Info("redemption refused",
			zap.String("donor_id", donorID.String()),
			zap.String("item_id", item.ID),
			zap.String("reason", "insufficient_balance"),
			zap.Int64("balance", available),
			zap.Int64("cost", item.Cost),
		)
		return nil, fmt.Errorf("%w: you need %d DT for %s but have %d DT",
			store.ErrInsufficientBalance, item.Cost, item.Title, available)
	}

	now := w.now()
	s := domain.RedemptionSession{
		ID:        uuid.New(),
		DonorID:   donorID,
		Item:      item,
		State:     domain.StateSelectingLocation,
		Balance:   available,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &s, nil
}

// Session returns the donor's session.
func (w *Workflow) Session(ctx context.Context, donorID, sessionID uuid.UUID) (*domain.RedemptionSession, error) {
	s, err := w.load(ctx, donorID, sessionID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (w *Workflow) load(ctx context.Context, donorID, sessionID uuid.UUID) (domain.RedemptionSession, error) {
	s, err := w.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.RedemptionSession{}, err
	}
	if s.DonorID != donorID {
		return domain.RedemptionSession{}, ErrSessionNotFound
	}
	return s, nil
}

func (w *Workflow) save(ctx context.Context, s *domain.RedemptionSession) error {
	s.UpdatedAt = w.now()
	return w.sessions.Save(ctx, *s)
}

// SelectLocation records the facility (service items) or vendor (product
// items) where the donor will redeem.
func (w *Workflow) SelectLocation(ctx context.Context, donorID, sessionID uuid.UUID, name, address string) (*domain.RedemptionSession, error) {
	defer w.lock(sessionID)()

	s, err := w.load(ctx, donorID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != domain.StateSelectingLocation {
		return nil, ErrInvalidTransition
	}
	if strings.TrimSpace(name) == "" {
		return nil, &domain.FieldError{Field: "name", Message: "location name is required"}
	}

	var loc domain.Location
	var ok bool
	if s.Item.Category == domain.ItemService {
		loc, ok = w.locations.ResolveFacility(name, address)
	} else {
		loc, ok = w.locations.ResolveVendor(name, address)
	}
	if !ok {
		return nil, &domain.FieldError{Field: "name", Message: "unknown location " + name}
	}

	s.Location = &loc
	if err := w.save(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Proceed generates the redemption details and moves to ConfirmingRedemption.
func (w *Workflow) Proceed(ctx context.Context, donorID, sessionID uuid.UUID) (*domain.RedemptionSession, error) {
	defer w.lock(sessionID)()

	s, err := w.load(ctx, donorID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != domain.StateSelectingLocation {
		return nil, ErrInvalidTransition
	}
	if s.Location == nil {
		return nil, &domain.FieldError{Field: "location", Message: "select a facility or store to continue"}
	}

	s.State = domain.StateGeneratingDetails
	details := domain.RedemptionDetails{
		Code:          RedemptionCode(s.Item.Title, w.intn),
		SuggestedTime: advisor.Fallback.SuggestedTime,
		Reasoning:     advisor.Fallback.Reasoning,
	}
	if s.Item.Category == domain.ItemService {
		suggestion, err := w.advisor.SuggestOrFallback(ctx, s.Location.Name, s.Item.Title)
		if err != nil {
			w.logger.Warn("time suggestion failed; using fallback",
				zap.String("session_id", s.ID.String()),
				zap.String("facility", s.Location.Name),
				zap.Error(err),
			)
		}
		details.SuggestedTime = suggestion.SuggestedTime
		details.Reasoning = suggestion.Reasoning
	}

	s.Details = &details
	s.State = domain.StateConfirmingRedemption
	if err := w.save(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Back returns from ConfirmingRedemption to SelectingLocation and discards
// the generated details. The selected location is kept.
func (w *Workflow) Back(ctx context.Context, donorID, sessionID uuid.UUID) (*domain.RedemptionSession, error) {
	defer w.lock(sessionID)()

	s, err := w.load(ctx, donorID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != domain.StateConfirmingRedemption {
		return nil, ErrInvalidTransition
	}
	s.State = domain.StateSelectingLocation
	s.Details = nil
	if err := w.save(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Cancel closes the dialog. Nothing has been committed before Confirm, so no
// compensation is needed.
func (w *Workflow) Cancel(ctx context.Context, donorID, sessionID uuid.UUID) error {
	defer w.lock(sessionID)()

	if _, err := w.load(ctx, donorID, sessionID); err != nil {
		return err
	}
	return w.sessions.Delete(ctx, sessionID)
}

// Confirm issues the redemption. On success the session is Completed and
// closed; on failure the ledger is unchanged and the session is back in
// SelectingLocation.
func (w *Workflow) Confirm(ctx context.Context, donorID, sessionID uuid.UUID) (*Confirmation, error) {
	defer w.lock(sessionID)()

	s, err := w.load(ctx, donorID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != domain.StateConfirmingRedemption || s.Details == nil || s.Location == nil {
		return nil, ErrInvalidTransition
	}
	log := w.logger.With(zap.String("session_id", s.ID.String()), zap.String("donor_id", donorID.String()))

	donor, err := w.repo.FindDonorByID(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("load donor: %w", err)
	}

	staged, err := w.stage(ctx, &s)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			return nil, w.fail(ctx, &s, log, "insufficient_balance", err)
		}
		return nil, err
	}

	balance, err := w.repo.Balance(ctx, donorID)
	if err != nil {
		return nil, w.discard(ctx, &s, staged, log, "balance_lookup", err)
	}
	postBalance := balance - staged.Cost

	msg, err := w.composer.Compose(ctx, domain.NotificationIntent{
		Type:            domain.NotifyRedemption,
		PhoneNumber:     donor.PhoneNumber,
		UserName:        donor.Name,
		TokenBalance:    &postBalance,
		ServiceRedeemed: staged.ItemTitle,
		RedemptionCode:  staged.Code,
		SuggestedTime:   staged.SuggestedTime,
	})
	if err != nil {
		return nil, w.discard(ctx, &s, staged, log, "compose_failed", err)
	}

	delivery, err := w.dispatcher.Dispatch(ctx, donor.PhoneNumber, msg.SMSMessage)
	if err != nil {
		return nil, w.discard(ctx, &s, staged, log, "dispatch_failed", err)
	}

	final, entry, err := w.repo.FinalizeRedemption(ctx, staged.ID)
	if err != nil {
		// The SMS is already out; the staged hold is released so the donor is not charged.
		return nil, w.discard(ctx, &s, staged, log, "finalize_failed", err)
	}

	s.State = domain.StateCompleted
	s.RedemptionID = &final.ID
	s.Balance = postBalance
	s.UpdatedAt = w.now()
	if err := w.sessions.Delete(ctx, s.ID); err != nil {
		log.Warn("session cleanup failed", zap.Error(err))
	}

	log.Info("redemption completed",
		zap.String("redemption_id", final.ID.String()),
		zap.String("code", final.Code),
		zap.Int64("cost", final.Cost),
		zap.Int64("balance", postBalance),
	)
	w.events.publish(ctx, domain.EventRedemptionCompleted, domain.RedemptionCompletedEvent{
		RedemptionID: final.ID,
		DonorID:      final.DonorID,
		Code:         final.Code,
		ItemTitle:    final.ItemTitle,
		Cost:         final.Cost,
		Timestamp:    final.UpdatedAt,
	})
	w.events.ledger(ctx, *entry)

	return &Confirmation{Session: s, Redemption: *final, Message: msg.SMSMessage, Delivery: delivery}, nil
}

// stage reserves the redemption, regenerating the code on collisions.
func (w *Workflow) stage(ctx context.Context, s *domain.RedemptionSession) (*domain.Redemption, error) {
	red := &domain.Redemption{
		DonorID:       s.DonorID,
		Code:          s.Details.Code,
		ItemID:        s.Item.ID,
		ItemTitle:     s.Item.Title,
		Cost:          s.Item.Cost,
		Location:      s.Location.String(),
		SuggestedTime: s.Details.SuggestedTime,
		Reasoning:     s.Details.Reasoning,
	}
	for attempt := 1; ; attempt++ {
		err := w.repo.StageRedemption(ctx, red)
		if err == nil {
			s.Details.Code = red.Code
			return red, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) || attempt == maxCodeAttempts {
			return nil, fmt.Errorf("stage redemption: %w", err)
		}
		red.ID = uuid.Nil
		red.Code = RedemptionCode(s.Item.Title, w.intn)
	}
}

// discard releases the staged hold. It runs on a context detached from the
// request so a disconnected client or an expired deadline still releases it;
// whatever survives is left to the HoldSweeper.
func (w *Workflow) discard(ctx context.Context, s *domain.RedemptionSession, staged *domain.Redemption, log *zap.Logger, reason string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := w.repo.DiscardRedemption(cleanupCtx, staged.ID); err != nil {
		log.Error("staged redemption discard failed", zap.String("redemption_id", staged.ID.String()), zap.Error(err))
	}
	return w.fail(ctx, s, log, reason, cause)
}

// fail returns the session to SelectingLocation and passes cause through.
func (w *Workflow) fail(ctx context.Context, s *domain.RedemptionSession, log *zap.Logger, reason string, cause error) error {
	log.Warn("redemption confirmation failed", zap.String("outcome", "rolled_back"), zap.String("reason", reason), zap.Error(cause))
	s.State = domain.StateSelectingLocation
	s.Details = nil
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := w.save(cleanupCtx, s); err != nil {
		log.Warn("session reset failed", zap.Error(err))
	}
	return cause
}
