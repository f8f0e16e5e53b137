package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/herodrop/rewards-service/internal/store/kv"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PledgeDescription is the ledger text for a booked donation.
func PledgeDescription(facility string) string { return "Pledge: " + facility }

// CancelledPledgeDescription is the ledger text for a cancellation penalty.
func CancelledPledgeDescription(facility string) string { return "Cancelled pledge: " + facility }

// BookingRequest books a donation appointment.
type BookingRequest struct {
	DonorID         uuid.UUID
	FacilityName    string
	FacilityAddress string
	ScheduledFor    time.Time
}

// PledgeService books, cancels and completes donation pledges.
type PledgeService struct {
	repo       store.Repository
	locations  LocationResolver
	state      StateStore
	composer   MessageComposer
	dispatcher MessageDispatcher
	events     events
	logger     *zap.Logger
	now        func() time.Time
}

// NewPledgeService creates a PledgeService. publisher may be nil.
func NewPledgeService(
	repo store.Repository,
	locations LocationResolver,
	state StateStore,
	composer MessageComposer,
	dispatcher MessageDispatcher,
	publisher rabbitmq.Publisher,
	logger *zap.Logger,
) *PledgeService {
	logger = logger.With(zap.String("component", "pledges"))
	return &PledgeService{
		repo:       repo,
		locations:  locations,
		state:      state,
		composer:   composer,
		dispatcher: dispatcher,
		events:     events{publisher: publisher, logger: logger},
		logger:     logger,
		now:        time.Now,
	}
}

// Book schedules a pledge and credits the pledge tokens. The confirmation SMS
// is best-effort.
func (s *PledgeService) Book(ctx context.Context, req BookingRequest) (*domain.Pledge, error) {
	if strings.TrimSpace(req.FacilityName) == "" {
		return nil, &domain.FieldError{Field: "hospital", Message: "is required"}
	}
	if req.ScheduledFor.IsZero() {
		return nil, &domain.FieldError{Field: "date", Message: "is required"}
	}
	if req.ScheduledFor.Before(s.now()) {
		return nil, &domain.FieldError{Field: "date", Message: "must be in the future"}
	}
	loc, ok := s.locations.ResolveFacility(req.FacilityName, req.FacilityAddress)
	if !ok {
		return nil, &domain.FieldError{Field: "hospital", Message: "unknown facility " + req.FacilityName}
	}

	donor, err := s.repo.FindDonorByID(ctx, req.DonorID)
	if err != nil {
		return nil, err
	}

	p := &domain.Pledge{DonorID: donor.ID, Facility: loc.Name, ScheduledFor: req.ScheduledFor}
	credit := domain.NewLedgerEntry(donor.ID, PledgeDescription(loc.Name), domain.PledgeTokens)
	if err := s.repo.CreatePledge(ctx, p, credit); err != nil {
		return nil, fmt.Errorf("create pledge: %w", err)
	}
	s.events.ledger(ctx, credit)

	appt := domain.AppointmentFor(*p)
	if err := s.state.Put(ctx, donor.ID.String(), kv.KeyUpcomingAppointment, appt); err != nil {
		s.logger.Warn("upcoming appointment not stored", zap.String("pledge_id", p.ID.String()), zap.Error(err))
	}

	s.notifyBestEffort(ctx, donor, domain.NotificationIntent{
		Type:            domain.NotifyConfirmation,
		PhoneNumber:     donor.PhoneNumber,
		UserName:        donor.Name,
		HospitalName:    loc.Name,
		AppointmentTime: appt.Describe(),
	})
	return p, nil
}

// UpcomingAppointment returns the donor's stored upcoming appointment.
func (s *PledgeService) UpcomingAppointment(ctx context.Context, donorID uuid.UUID) (*domain.Appointment, error) {
	var appt domain.Appointment
	if err := s.state.Get(ctx, donorID.String(), kv.KeyUpcomingAppointment, &appt); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("upcoming appointment: %w", store.ErrNotFound)
		}
		return nil, err
	}
	return &appt, nil
}

// Cancel cancels a scheduled pledge and records the penalty debit. When
// donorID is non-nil the pledge must belong to that donor.
func (s *PledgeService) Cancel(ctx context.Context, donorID *uuid.UUID, pledgeID uuid.UUID) (*domain.Pledge, error) {
	p, err := s.repo.FindPledgeByID(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	if donorID != nil && p.DonorID != *donorID {
		return nil, store.ErrNotFound
	}

	penalty := domain.NewLedgerEntry(p.DonorID, CancelledPledgeDescription(p.Facility), -domain.CancellationPenalty)
	cancelled, err := s.repo.CancelPledge(ctx, pledgeID, penalty)
	if err != nil {
		return nil, err
	}
	s.clearAppointment(ctx, cancelled)

	s.logger.Info("pledge cancelled", zap.String("pledge_id", pledgeID.String()), zap.String("donor_id", p.DonorID.String()))
	s.events.pledge(ctx, domain.EventPledgeCancelled, cancelled)
	s.events.ledger(ctx, penalty)
	return cancelled, nil
}

// Complete records a finished donation. The donor and next-of-kin messages are
// composed concurrently and both dispatched before the pledge is marked
// Completed; any failure leaves the pledge Scheduled and the ledger unchanged.
func (s *PledgeService) Complete(ctx context.Context, pledgeID uuid.UUID) (*domain.Pledge, error) {
	p, err := s.repo.FindPledgeByID(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PledgeScheduled {
		return nil, store.ErrInvalidStatus
	}
	donor, err := s.repo.FindDonorByID(ctx, p.DonorID)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.Balance(ctx, donor.ID)
	if err != nil {
		return nil, err
	}
	postBalance := balance + domain.DonationTokens
	log := s.logger.With(zap.String("pledge_id", p.ID.String()), zap.String("donor_id", donor.ID.String()))

	hasKin := strings.TrimSpace(donor.KinName) != "" && strings.TrimSpace(donor.KinPhone) != ""

	var donorMsg, kinMsg domain.ComposedMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msg, err := s.composer.Compose(gctx, domain.NotificationIntent{
			Type:         domain.NotifyRewards,
			PhoneNumber:  donor.PhoneNumber,
			UserName:     donor.Name,
			TokenBalance: &postBalance,
		})
		if err != nil {
			return fmt.Errorf("compose donor sms: %w", err)
		}
		donorMsg = msg
		return nil
	})
	if hasKin {
		g.Go(func() error {
			msg, err := s.composer.ComposeNextOfKin(gctx, donor.Name, donor.KinName, p.Facility)
			if err != nil {
				return fmt.Errorf("compose next-of-kin sms: %w", err)
			}
			kinMsg = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("pledge completion aborted", zap.String("outcome", "rolled_back"), zap.String("reason", "compose_failed"), zap.Error(err))
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, donor.PhoneNumber, donorMsg.SMSMessage); err != nil {
		log.Warn("pledge completion aborted", zap.String("outcome", "rolled_back"), zap.String("reason", "donor_dispatch_failed"), zap.Error(err))
		return nil, err
	}
	if hasKin {
		if _, err := s.dispatcher.Dispatch(ctx, donor.KinPhone, kinMsg.SMSMessage); err != nil {
			log.Warn("pledge completion aborted", zap.String("outcome", "rolled_back"), zap.String("reason", "kin_dispatch_failed"), zap.Error(err))
			return nil, err
		}
	}

	credit := domain.NewLedgerEntry(donor.ID, domain.CompletedDonationText, domain.DonationTokens)
	completed, err := s.repo.CompletePledge(ctx, pledgeID, credit)
	if err != nil {
		return nil, err
	}
	s.clearAppointment(ctx, completed)

	log.Info("pledge completed", zap.Int64("balance", postBalance), zap.Bool("next_of_kin_notified", hasKin))
	s.events.pledge(ctx, domain.EventPledgeCompleted, completed)
	s.events.ledger(ctx, credit)
	return completed, nil
}

// HandleDonationRecorded consumes donation.recorded events. Malformed events
// and pledges that cannot be completed are acknowledged and dropped.
func (s *PledgeService) HandleDonationRecorded(ctx context.Context, body []byte) bool {
	var event domain.DonationRecordedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Warn("donation event unreadable; dropping", zap.Error(err))
		return true
	}
	if event.PledgeID == uuid.Nil {
		s.logger.Warn("donation event missing pledge id; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.Complete(ctx, event.PledgeID); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidStatus) {
			s.logger.Info("donation event ignored", zap.String("pledge_id", event.PledgeID.String()), zap.Error(err))
			return true
		}
		s.logger.Warn("donation event processing failed; requeueing", zap.String("pledge_id", event.PledgeID.String()), zap.Error(err))
		return false
	}
	return true
}

// ListPledges returns pledges for the admin view.
func (s *PledgeService) ListPledges(ctx context.Context, filter store.PledgeFilter) ([]domain.Pledge, error) {
	return s.repo.ListPledges(ctx, filter)
}

func (s *PledgeService) clearAppointment(ctx context.Context, p *domain.Pledge) {
	owner := p.DonorID.String()
	var appt domain.Appointment
	if err := s.state.Get(ctx, owner, kv.KeyUpcomingAppointment, &appt); err != nil {
		return
	}
	if appt.PledgeID != p.ID {
		return
	}
	if err := s.state.Delete(ctx, owner, kv.KeyUpcomingAppointment); err != nil {
		s.logger.Warn("upcoming appointment not cleared", zap.String("pledge_id", p.ID.String()), zap.Error(err))
	}
}

func (s *PledgeService) notifyBestEffort(ctx context.Context, donor *domain.Donor, intent domain.NotificationIntent) {
	msg, err := s.composer.Compose(ctx, intent)
	if err != nil {
		s.logger.Warn("notification skipped", zap.String("type", string(intent.Type)), zap.String("donor_id", donor.ID.String()), zap.Error(err))
		return
	}
	if _, err := s.dispatcher.Dispatch(ctx, donor.PhoneNumber, msg.SMSMessage); err != nil {
		s.logger.Warn("notification not delivered", zap.String("type", string(intent.Type)), zap.String("donor_id", donor.ID.String()), zap.Error(err))
	}
}
