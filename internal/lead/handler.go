package lead

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
)

// Handler exposes lead submission and admin lead endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// SubmitResponse is returned by POST /leads.
type SubmitResponse struct {
	LeadID     string `json:"lead_id"`
	Status     string `json:"status"`
	ProviderID string `json:"provider_id,omitempty"`
	Notified   bool   `json:"notified"`
	PriceCents int    `json:"price_cents"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub entity.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.logger.Debugw("invalid lead payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	l, res, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		var verrs entity.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verrs})
			return
		case l != nil:
			// stored but not routed; safe to retry through the admin route endpoint
			h.logger.Errorw("lead routing failed", "lead_id", l.ID, "err", err)
			h.writeJSON(w, http.StatusAccepted, SubmitResponse{LeadID: l.ID, Status: "pending", PriceCents: l.PriceCents})
			return
		default:
			h.logger.Errorw("lead submission failed", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "submission failed"})
			return
		}
	}
	out := SubmitResponse{LeadID: l.ID, Status: "unserved", Notified: res.Notified, PriceCents: l.PriceCents}
	if res.Routed {
		out.Status = "routed"
		out.ProviderID = res.ProviderID
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// List handles GET /admin/leads?status=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := entity.Status(strings.ToUpper(q.Get("status")))
	if status != "" && status != entity.StatusOpen && status != entity.StatusClaimed {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	leads, err := h.svc.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Errorw("list leads failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if leads == nil {
		leads = []entity.Lead{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

// Route handles POST /admin/leads/{id}/route.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RouteByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.logger.Errorw("manual routing failed", "lead_id", r.PathValue("id"), "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "routing failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
