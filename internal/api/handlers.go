/**
 * @description
 * HTTP handlers for the donor-facing endpoints. Handlers decode the request,
 * call the application service and write the JSON response; every service
 * error goes through writeServiceError.
 *
 * @dependencies
 * - internal/app: redemption workflow, pledges, donors, broadcasts.
 * - internal/eligibility, internal/locator, internal/catalog, internal/notify.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/eligibility"
	"github.com/herodrop/rewards-service/internal/locator"
	"github.com/herodrop/rewards-service/internal/notify"
	"go.uber.org/zap"
)

// Services are the application components the handlers call.
type Services struct {
	Eligibility *eligibility.Evaluator
	Locator     *locator.Locator
	Catalog     *catalog.Catalog
	Workflow    *app.Workflow
	Pledges     *app.PledgeService
	Donors      *app.DonorService
	Notifier    *notify.Notifier
	Broadcaster *app.Broadcaster
}

// Handlers holds the services the HTTP layer uses.
type Handlers struct {
	svc    Services
	logger *zap.Logger
	// Time zone appointment dates are parsed in.
	location *time.Location
}

func NewHandlers(svc Services, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger.With(zap.String("component", "api")), location: time.Local}
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.FieldError{Field: "body", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func (h *Handlers) donorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not get donor from token")
		return uuid.Nil, false
	}
	return p.DonorID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// CheckEligibility handles POST /eligibility/check.
func (h *Handlers) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var answers domain.AnswerSet
	if err := decode(r, &answers); err != nil {
		h.writeServiceError(w, "eligibility_check", err)
		return
	}
	decision, err := h.svc.Eligibility.Evaluate(r.Context(), answers)
	if err != nil {
		h.writeServiceError(w, "eligibility_check", err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// FindFacilities handles GET /facilities?q=.
func (h *Handlers) FindFacilities(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.Locator.FindFacilities(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, "find_facilities", err)
		return
	}
	if matches == nil {
		matches = []domain.FacilityMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"facilities": matches})
}

// FindVendors handles GET /vendors?q=.
func (h *Handlers) FindVendors(w http.ResponseWriter, r *http.Request) {
	vendors := h.svc.Locator.FindVendors(r.URL.Query().Get("q"))
	if vendors == nil {
		vendors = []domain.Vendor{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vendors": vendors})
}

// ListItems handles GET /catalog/items.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": h.svc.Catalog.Items()})
}

// GetWallet handles GET /wallet.
func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	wallet, err := h.svc.Donors.Wallet(r.Context(), donorID)
	if err != nil {
		h.writeServiceError(w, "wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type createSessionRequest struct {
	ItemID string `json:"item_id"`
}

// CreateSession handles POST /redemptions/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, "create_session", err)
		return
	}
	s, err := h.svc.Workflow.Begin(r.Context(), donorID, strings.TrimSpace(req.ItemID))
	if err != nil {
		h.writeServiceError(w, "create_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// sessionStep adapts the workflow transitions that take only the session id.
func (h *Handlers) sessionStep(endpoint string, step func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donorID, ok := h.donorID(w, r)
		if !ok {
			return
		}
		sessionID, ok := pathID(w, r)
		if !ok {
			return
		}
		out, err := step(r, donorID, sessionID)
		if err != nil {
			h.writeServiceError(w, endpoint, err)
			return
		}
		if out == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GetSession handles GET /redemptions/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("get_session", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		return h.svc.Workflow.Session(r.Context(), donorID, sessionID)
	})(w, r)
}

type selectLocationRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// SelectLocation handles PUT /redemptions/sessions/{id}/location.
func (h *Handlers) SelectLocation(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("select_location", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		var req selectLocationRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return h.svc.Workflow.SelectLocation(r.Context(), donorID, sessionID, req.Name, req.Address)
	})(w, r)
}

// ProceedSession handles POST /redemptions/sessions/{id}/proceed.
func (h *Handlers) ProceedSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("proceed_session", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		return h.svc.Workflow.Proceed(r.Context(), donorID, sessionID)
	})(w, r)
}

// BackSession handles POST /redemptions/sessions/{id}/back.
func (h *Handlers) BackSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("back_session", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		return h.svc.Workflow.Back(r.Context(), donorID, sessionID)
	})(w, r)
}

// ConfirmSession handles POST /redemptions/sessions/{id}/confirm.
func (h *Handlers) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("confirm_session", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		return h.svc.Workflow.Confirm(r.Context(), donorID, sessionID)
	})(w, r)
}

// CancelSession handles DELETE /redemptions/sessions/{id}.
func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.sessionStep("cancel_session", func(r *http.Request, donorID, sessionID uuid.UUID) (interface{}, error) {
		return nil, h.svc.Workflow.Cancel(r.Context(), donorID, sessionID)
	})(w, r)
}

type bookAppointmentRequest struct {
	Hospital string `json:"hospital"`
	Address  string `json:"address"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

func (h *Handlers) parseAppointment(date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, &domain.FieldError{Field: "date", Message: "is required"}
	}
	if clock == "" {
		return time.Time{}, &domain.FieldError{Field: "time", Message: "is required"}
	}
	t, err := time.ParseInLocation(domain.AppointmentDateLayout+" "+domain.AppointmentTimeLayout, date+" "+clock, h.location)
	if err != nil {
		return time.Time{}, &domain.FieldError{Field: "date", Message: "must be YYYY-MM-DD with time HH:MM"}
	}
	return t, nil
}

// BookAppointment handles POST /appointments.
func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	var req bookAppointmentRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, "book_appointment", err)
		return
	}
	when, err := h.parseAppointment(req.Date, req.Time)
	if err != nil {
		h.writeServiceError(w, "book_appointment", err)
		return
	}
	p, err := h.svc.Pledges.Book(r.Context(), app.BookingRequest{
		DonorID:         donorID,
		FacilityName:    req.Hospital,
		FacilityAddress: req.Address,
		ScheduledFor:    when,
	})
	if err != nil {
		h.writeServiceError(w, "book_appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpcomingAppointment handles GET /appointments/upcoming.
func (h *Handlers) UpcomingAppointment(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Pledges.UpcomingAppointment(r.Context(), donorID)
	if err != nil {
		h.writeServiceError(w, "upcoming_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelPledge handles POST /pledges/{id}/cancel for the pledge's owner.
func (h *Handlers) CancelPledge(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	pledgeID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Pledges.Cancel(r.Context(), &donorID, pledgeID)
	if err != nil {
		h.writeServiceError(w, "cancel_pledge", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type referralRequest struct {
	FriendName string `json:"friend_name"`
}

// CreditReferral handles POST /referrals.
func (h *Handlers) CreditReferral(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	var req referralRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, "referral", err)
		return
	}
	entry, err := h.svc.Donors.CreditReferral(r.Context(), donorID, req.FriendName)
	if err != nil {
		h.writeServiceError(w, "referral", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
