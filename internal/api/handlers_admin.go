package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/store"
)

// RegisterDonor handles POST /admin/donors.
func (h *Handlers) RegisterDonor(w http.ResponseWriter, r *http.Request) {
	var d domain.Donor
	if err := decode(r, &d); err != nil {
		h.writeServiceError(w, "register_donor", err)
		return
	}
	created, err := h.svc.Donors.Register(r.Context(), d)
	if err != nil {
		h.writeServiceError(w, "register_donor", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func optionalUUID(raw, field string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &domain.FieldError{Field: field, Message: "must be a uuid"}
	}
	return &id, nil
}

func (h *Handlers) optionalDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(domain.AppointmentDateLayout, raw, h.location)
	if err != nil {
		return time.Time{}, &domain.FieldError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return t, nil
}

func (h *Handlers) pledgeFilter(r *http.Request) (store.PledgeFilter, error) {
	q := r.URL.Query()
	var (
		f   store.PledgeFilter
		err error
	)
	if f.DonorID, err = optionalUUID(q.Get("donor_id"), "donor_id"); err != nil {
		return f, err
	}
	switch status := domain.PledgeStatus(q.Get("status")); status {
	case "", domain.PledgeScheduled, domain.PledgeCompleted, domain.PledgeCancelled:
		f.Status = status
	default:
		return f, &domain.FieldError{Field: "status", Message: "must be Scheduled, Completed or Cancelled"}
	}
	if f.ScheduledFrom, err = h.optionalDate(q.Get("from"), "from"); err != nil {
		return f, err
	}
	until, err := h.optionalDate(q.Get("until"), "until")
	if err != nil {
		return f, err
	}
	if !until.IsZero() {
		// until is inclusive on the wire.
		f.ScheduledUntil = until.AddDate(0, 0, 1)
	}
	return f, nil
}

// ListPledges handles GET /admin/pledges.
func (h *Handlers) ListPledges(w http.ResponseWriter, r *http.Request) {
	filter, err := h.pledgeFilter(r)
	if err != nil {
		h.writeServiceError(w, "list_pledges", err)
		return
	}
	pledges, err := h.svc.Pledges.ListPledges(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list_pledges", err)
		return
	}
	if pledges == nil {
		pledges = []domain.Pledge{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pledges": pledges})
}

// CompletePledge handles POST /admin/pledges/{id}/complete.
func (h *Handlers) CompletePledge(w http.ResponseWriter, r *http.Request) {
	pledgeID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Pledges.Complete(r.Context(), pledgeID)
	if err != nil {
		h.writeServiceError(w, "complete_pledge", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AdminCancelPledge handles POST /admin/pledges/{id}/cancel.
func (h *Handlers) AdminCancelPledge(w http.ResponseWriter, r *http.Request) {
	pledgeID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Pledges.Cancel(r.Context(), nil, pledgeID)
	if err != nil {
		h.writeServiceError(w, "admin_cancel_pledge", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListRedemptions handles GET /admin/redemptions.
func (h *Handlers) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	donorID, err := optionalUUID(q.Get("donor_id"), "donor_id")
	if err != nil {
		h.writeServiceError(w, "list_redemptions", err)
		return
	}
	status := domain.RedemptionStatus(q.Get("status"))
	switch status {
	case "", domain.RedemptionPending, domain.RedemptionFulfilled, domain.RedemptionRejected:
	default:
		h.writeServiceError(w, "list_redemptions", &domain.FieldError{Field: "status", Message: "must be pending, fulfilled or rejected"})
		return
	}
	redemptions, err := h.svc.Donors.ListRedemptions(r.Context(), store.RedemptionFilter{DonorID: donorID, Status: status})
	if err != nil {
		h.writeServiceError(w, "list_redemptions", err)
		return
	}
	if redemptions == nil {
		redemptions = []domain.Redemption{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"redemptions": redemptions})
}

// FulfillRedemption handles POST /admin/redemptions/{id}/fulfill.
func (h *Handlers) FulfillRedemption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	red, err := h.svc.Donors.FulfillRedemption(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "fulfill_redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, red)
}

// RejectRedemption handles POST /admin/redemptions/{id}/reject.
func (h *Handlers) RejectRedemption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	red, err := h.svc.Donors.RejectRedemption(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "reject_redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, red)
}

type notificationRequest struct {
	domain.NotificationIntent
	Send bool `json:"send"`
}

type notificationResponse struct {
	SMSMessage string                 `json:"smsMessage"`
	Delivery   *domain.DeliveryResult `json:"delivery,omitempty"`
}

// SendNotification handles POST /admin/sms/notifications. With send=false
// the composed text is returned without dispatching.
func (h *Handlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, "sms_notification", err)
		return
	}
	msg, delivery, err := h.svc.Notifier.Notify(r.Context(), req.NotificationIntent, req.Send)
	if err != nil {
		h.writeServiceError(w, "sms_notification", err)
		return
	}
	writeJSON(w, http.StatusOK, notificationResponse{SMSMessage: msg.SMSMessage, Delivery: delivery})
}

// Broadcast handles POST /admin/sms/broadcast.
func (h *Handlers) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req app.BroadcastRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, "sms_broadcast", err)
		return
	}
	res, err := h.svc.Broadcaster.Send(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "sms_broadcast", err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}
