/**
 * @description
 * Appointment reminders. The job runs on a cron schedule and sends a reminder
 * SMS for every Scheduled pledge dated the following day.
 */

package app

import (
	"context"
	"time"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderJob sends next-day appointment reminders.
type ReminderJob struct {
	repo       store.Repository
	composer   MessageComposer
	dispatcher MessageDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewReminderJob(repo store.Repository, composer MessageComposer, dispatcher MessageDispatcher, logger *zap.Logger) *ReminderJob {
	return &ReminderJob{
		repo:       repo,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "scheduler")),
		now:        time.Now,
	}
}

// SendReminders notifies donors with a pledge scheduled tomorrow (in the
// clock's location). Individual failures are logged and skipped.
func (j *ReminderJob) SendReminders(ctx context.Context) (sent int, err error) {
	now := j.now()
	y, m, d := now.Date()
	from := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	until := from.AddDate(0, 0, 1)

	pledges, err := j.repo.ListPledges(ctx, store.PledgeFilter{
		Status:         domain.PledgeScheduled,
		ScheduledFrom:  from,
		ScheduledUntil: until,
	})
	if err != nil {
		return 0, err
	}

	for _, p := range pledges {
		log := j.logger.With(zap.String("pledge_id", p.ID.String()))
		donor, err := j.repo.FindDonorByID(ctx, p.DonorID)
		if err != nil {
			log.Warn("reminder skipped", zap.String("reason", "donor_lookup"), zap.Error(err))
			continue
		}
		appt := domain.AppointmentFor(domain.Pledge{ID: p.ID, Facility: p.Facility, ScheduledFor: p.ScheduledFor.In(now.Location())})
		msg, err := j.composer.Compose(ctx, domain.NotificationIntent{
			Type:            domain.NotifyReminder,
			PhoneNumber:     donor.PhoneNumber,
			UserName:        donor.Name,
			HospitalName:    p.Facility,
			AppointmentTime: appt.Describe(),
		})
		if err != nil {
			log.Warn("reminder skipped", zap.String("reason", "compose_failed"), zap.Error(err))
			continue
		}
		if _, err := j.dispatcher.Dispatch(ctx, donor.PhoneNumber, msg.SMSMessage); err != nil {
			log.Warn("reminder skipped", zap.String("reason", "dispatch_failed"), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// Run is the cron entry point.
func (j *ReminderJob) Run() {
	j.logger.Info("starting appointment reminder job")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sent, err := j.SendReminders(ctx)
	if err != nil {
		j.logger.Error("appointment reminder job failed", zap.Error(err))
		return
	}
	j.logger.Info("appointment reminder job finished", zap.Int("sent", sent))
}

// Schedules holds the cron specs for the scheduled jobs.
type Schedules struct {
	Reminders string
	HoldSweep string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	reminder  *ReminderJob
	sweeper   *HoldSweeper
	schedules Schedules
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. sweeper may be nil.
func NewScheduler(reminder *ReminderJob, sweeper *HoldSweeper, schedules Schedules, logger *zap.Logger) *Scheduler {
	logger = logger.With(zap.String("component", "scheduler"))
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:      c,
		reminder:  reminder,
		sweeper:   sweeper,
		schedules: schedules,
		logger:    logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedules.Reminders, s.reminder.Run); err != nil {
		s.logger.Error("failed to schedule appointment reminder job", zap.Error(err))
		return err
	}
	s.logger.Info("scheduled appointment reminder job", zap.String("schedule", s.schedules.Reminders))

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.schedules.HoldSweep, s.sweeper.Run); err != nil {
			s.logger.Error("failed to schedule staged hold sweep", zap.Error(err))
			return err
		}
		s.logger.Info("scheduled staged hold sweep", zap.String("schedule", s.schedules.HoldSweep))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
