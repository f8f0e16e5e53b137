package domain

import (
	"time"

	"github.com/google/uuid"
)

// Donor is a registered blood donor.
type Donor struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	BloodType   string    `json:"blood_type,omitempty"`
	KinName     string    `json:"next_of_kin_name,omitempty"`
	KinPhone    string    `json:"next_of_kin_phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PledgeStatus is the lifecycle of a booked donation.
type PledgeStatus string

const (
	PledgeScheduled PledgeStatus = "Scheduled"
	PledgeCompleted PledgeStatus = "Completed"
	PledgeCancelled PledgeStatus = "Cancelled"
)

// Pledge is a donor's commitment to donate at a facility on a date.
type Pledge struct {
	ID           uuid.UUID    `json:"id"`
	DonorID      uuid.UUID    `json:"donor_id"`
	Facility     string       `json:"facility"`
	ScheduledFor time.Time    `json:"scheduled_for"`
	Status       PledgeStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Appointment is the donor's upcoming appointment as shown on the dashboard.
type Appointment struct {
	PledgeID uuid.UUID `json:"pledge_id"`
	Facility string    `json:"hospital"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
}

// AppointmentDateLayout is the layout of Appointment.Date.
const AppointmentDateLayout = "2006-01-02"

// AppointmentTimeLayout is the layout of Appointment.Time.
const AppointmentTimeLayout = "15:04"

// AppointmentFor derives the dashboard view of a pledge.
func AppointmentFor(p Pledge) Appointment {
	return Appointment{
		PledgeID: p.ID,
		Facility: p.Facility,
		Date:     p.ScheduledFor.Format(AppointmentDateLayout),
		Time:     p.ScheduledFor.Format(AppointmentTimeLayout),
	}
}

// Describe renders the appointment the way SMS templates expect it.
func (a Appointment) Describe() string {
	return a.Date + " at " + a.Time
}
