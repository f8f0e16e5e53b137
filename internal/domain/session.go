package domain

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionState is a step of the redemption dialog.
type RedemptionState string

const (
	StateSelectingLocation    RedemptionState = "SelectingLocation"
	StateGeneratingDetails    RedemptionState = "GeneratingDetails"
	StateConfirmingRedemption RedemptionState = "ConfirmingRedemption"
	StateCompleted            RedemptionState = "Completed"
)

// RedemptionDetails are produced on "proceed" and shown for confirmation.
type RedemptionDetails struct {
	Code          string `json:"code"`
	SuggestedTime string `json:"suggested_time"`
	Reasoning     string `json:"reasoning"`
}

// RedemptionSession is one open redemption dialog.
type RedemptionSession struct {
	ID           uuid.UUID          `json:"id"`
	DonorID      uuid.UUID          `json:"donor_id"`
	Item         RedemptionItem     `json:"item"`
	State        RedemptionState    `json:"state"`
	Location     *Location          `json:"location,omitempty"`
	Details      *RedemptionDetails `json:"details,omitempty"`
	RedemptionID *uuid.UUID         `json:"redemption_id,omitempty"`
	Balance      int64              `json:"balance"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
