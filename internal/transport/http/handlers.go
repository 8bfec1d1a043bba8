package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"passgate/internal/pass"
	"passgate/internal/platform/middleware"
	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/httputil"
)

// maxBodyBytes bounds request bodies; every payload here is tiny.
const maxBodyBytes = 1 << 16

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON body"))
		return false
	}
	return true
}

func passIDFromURL(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "passID"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "passID must be a UUID")
	}
	return id, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := s.passes.Scan(r.Context(), actor, passID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	filter := pass.Filter{
		PaymentMethod: r.URL.Query().Get("payment_method"),
	}
	if v := r.URL.Query().Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "verified must be true or false"))
			return
		}
		filter.Verified = &verified
	}
	passes, err := s.passes.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request) {
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := s.passes.Get(r.Context(), passID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePass(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	var req struct {
		UserEmail string `json:"user_email"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.passes.CreateCashPass(r.Context(), actor, req.UserEmail)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAssignSlot(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		SlotNo  int   `json:"slot_no"`
		EventID int64 `json:"event_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	slot, err := s.allocator.AssignSlot(r.Context(), actor, passID, req.SlotNo, req.EventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, slot)
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	slotNo, err := strconv.Atoi(chi.URLParam(r, "slotNo"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "slotNo must be an integer"))
		return
	}
	if err := s.allocator.DeleteSlot(r.Context(), actor, passID, slotNo); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		EventID  int64 `json:"event_id"`
		Attended bool  `json:"attended"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.attendance.Mark(r.Context(), actor, passID, req.EventID, req.Attended); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMarkCashPaid(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	passID, err := passIDFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := s.payment.VerifyCash(r.Context(), actor, passID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body := map[string]any{"ok": true}
	if result.OperationID != "" {
		body["operation_id"] = result.OperationID
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// handleListEvents lists catalog events. Department-scoped actors see only
// their own department; central actors see everything.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	var deptFilter *int64
	if !actor.IsCentral() {
		deptFilter = actor.Department
	}
	events, err := s.events.ListEvents(r.Context(), deptFilter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list events failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "list events", err))
		return
	}
	type eventView struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		DepartmentID  *int64 `json:"department_id"`
		Type          string `json:"type"`
		Cost          *int64 `json:"cost"`
		Registrations int64  `json:"registrations"`
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:            e.ExternalID,
			Name:          e.Name,
			DepartmentID:  e.Department,
			Type:          string(e.Type),
			Cost:          e.Cost,
			Registrations: e.Registrations,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": views})
}

// handleReconcile rebuilds the derived registration counters from the slot
// rows. Escape hatch for counter drift; super_admin only.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	if err := s.recounter.RecountRegistrations(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "registrations recount failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "recount registrations", err))
		return
	}
	s.logger.InfoContext(r.Context(), "registrations recounted", "actor", actor.Email)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.health))
	for _, check := range s.health {
		if err := check.Health(r.Context()); err != nil {
			deps[check.name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[check.name] = "up"
	}
	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	httputil.WriteJSON(w, status, body)
}
