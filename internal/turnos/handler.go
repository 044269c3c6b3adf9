package turnos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/juaniAla/turnosColMag/internal/actor"
	"github.com/juaniAla/turnosColMag/internal/credential"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

// Handler exposes the staff operations over HTTP. Every route assumes an
// authenticated actor in the request context.
type Handler struct {
	service *Service
	filters *FilterStore
	logger  *logging.Logger
}

func NewHandler(service *Service, filters *FilterStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, filters: filters, logger: logger}
}

// List handles GET /turnos. Without query params it replays the actor's
// saved filter; with params it applies and persists them.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}

	filter, explicit := h.parseFilter(r)
	if !explicit && h.filters != nil {
		saved, err := h.filters.Load(r.Context(), act.Username)
		if err != nil {
			h.logger.Error("saved filter load failed", "error", err, "usuario", act.Username)
		} else {
			filter = saved
		}
	}

	// Regular staff only see their own office.
	if !act.SeesAllOffices() {
		filter.OficinaID = act.OficinaID
	}

	turnos, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if explicit && h.filters != nil {
		if err := h.filters.Save(r.Context(), act.Username, filter); err != nil {
			h.logger.Error("filter save failed", "error", err, "usuario", act.Username)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"turnos": turnos,
		"filtro": filter,
	})
}

func (h *Handler) parseFilter(r *http.Request) (ListFilter, bool) {
	filter := DefaultListFilter()
	q := r.URL.Query()
	explicit := false

	if raw := q.Get("momento"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Momento = Momento(n)
			explicit = true
		}
	}
	if raw := q.Get("estado"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Estado = n
			explicit = true
		}
	}
	if raw := q.Get("oficina_id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.OficinaID = n
			explicit = true
		}
	}
	return filter, explicit
}

// ToggleAttendance handles PUT /turnos/{id}/atendido.
func (h *Handler) ToggleAttendance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ToggleAttendance)
}

// MarkAbsent handles PUT /turnos/{id}/no-asistido.
func (h *Handler) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkAbsent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, usuario string) (*Turno, error)) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	turno, err := op(r.Context(), id, act.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turno)
}

// Reject handles POST /turnos/{id}/rechazo.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		MotivoRechazo string `json:"motivo_rechazo"`
		Notificar     bool   `json:"notificar"`
	}
	if r.Body != nil {
		// An empty body is fine, the configured default reason applies
		// and no notice goes out.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rec, err := h.service.Reject(r.Context(), id, req.MotivoRechazo, req.Notificar, act.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /turnos/{id}. Admin only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	if !act.HasRole(actor.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), id, act.Username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Receipt handles GET /turnos/{id}/comprobante.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	receipt, err := h.service.Receipt(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Scan handles POST /turnos/scan: the front desk reads a barcode and gets
// the booking back.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}

	var req struct {
		Codigo string `json:"codigo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Codigo == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	turno, err := h.service.ResolveCredential(r.Context(), req.Codigo, act.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turno)
}

// Occupancy handles GET /turnos/ocupacion?oficina_id=N. Regular staff only
// see their own office, whatever office the query names.
func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}

	oficinaID := act.OficinaID
	if raw := r.URL.Query().Get("oficina_id"); raw != "" && act.SeesAllOffices() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid oficina_id", http.StatusBadRequest)
			return
		}
		oficinaID = n
	}
	occ, err := h.service.Occupancy(r.Context(), oficinaID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTurnoNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSlotTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, credential.ErrInvalidCode):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("turnos request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
