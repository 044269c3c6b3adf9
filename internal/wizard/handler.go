package wizard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/juaniAla/turnosColMag/internal/turnos"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

// Handler exposes the public booking wizard over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// BeginRequest is the payload of the applicant step.
type BeginRequest struct {
	Apellido    string `json:"apellido"`
	Nombre      string `json:"nombre"`
	DNI         string `json:"dni"`
	Email       string `json:"email"`
	Telefono    string `json:"telefono"`
	OrganismoID int64  `json:"organismo_id,omitempty"`
	Motivo      string `json:"motivo"`
	Notebook    bool   `json:"notebook"`
	Zoom        bool   `json:"zoom"`
}

// Begin handles POST /turnos-web/solicitante.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := h.service.Begin(r.Context(), BeginInput{
		Persona: turnos.Persona{
			Apellido:    req.Apellido,
			Nombre:      req.Nombre,
			DNI:         req.DNI,
			Email:       req.Email,
			Telefono:    req.Telefono,
			OrganismoID: req.OrganismoID,
		},
		Motivo: req.Motivo,
		Flags:  turnos.Flags{Notebook: req.Notebook, Zoom: req.Zoom},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

// SelectOffice handles POST /turnos-web/{draftID}/oficina.
func (h *Handler) SelectOffice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OficinaID int64 `json:"oficina_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OficinaID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := h.service.SelectOffice(r.Context(), chi.URLParam(r, "draftID"), req.OficinaID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// SelectDateTime handles POST /turnos-web/{draftID}/fecha-hora.
func (h *Handler) SelectDateTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FechaHora time.Time `json:"fecha_hora"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FechaHora.IsZero() {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := h.service.SelectDateTime(r.Context(), chi.URLParam(r, "draftID"), req.FechaHora)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// Confirm handles POST /turnos-web/{draftID}/confirmacion. A lost slot
// race is not an error: the caller gets the outcome and the remaining
// free times with 409.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.Confirm(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if outcome.Status == SlotTaken {
		writeJSON(w, http.StatusConflict, outcome)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// GetDraft handles GET /turnos-web/{draftID}.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.Draft(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// FreeDates handles GET /turnos-web/oficinas/{oficinaID}/dias-libres.
func (h *Handler) FreeDates(w http.ResponseWriter, r *http.Request) {
	oficinaID, err := parseID(chi.URLParam(r, "oficinaID"))
	if err != nil {
		http.Error(w, "invalid oficina id", http.StatusBadRequest)
		return
	}
	dates, err := h.service.FreeDates(r.Context(), oficinaID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dias": formatDates(dates)})
}

// FullyBookedDates handles GET /turnos-web/oficinas/{oficinaID}/dias-ocupados.
func (h *Handler) FullyBookedDates(w http.ResponseWriter, r *http.Request) {
	oficinaID, err := parseID(chi.URLParam(r, "oficinaID"))
	if err != nil {
		http.Error(w, "invalid oficina id", http.StatusBadRequest)
		return
	}
	dates, err := h.service.FullyBookedDates(r.Context(), oficinaID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dias": formatDates(dates)})
}

// FreeTimes handles GET /turnos-web/oficinas/{oficinaID}/horas-libres?fecha=2006-01-02.
func (h *Handler) FreeTimes(w http.ResponseWriter, r *http.Request) {
	oficinaID, err := parseID(chi.URLParam(r, "oficinaID"))
	if err != nil {
		http.Error(w, "invalid oficina id", http.StatusBadRequest)
		return
	}
	fecha, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("fecha"), time.Local)
	if err != nil {
		http.Error(w, "invalid fecha", http.StatusBadRequest)
		return
	}
	times, err := h.service.FreeTimesOnDate(r.Context(), oficinaID, fecha)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"horas": times})
}

// Prefill handles GET /turnos-web/organismos/{organismoID}/ultimo-solicitante.
func (h *Handler) Prefill(w http.ResponseWriter, r *http.Request) {
	organismoID, err := parseID(chi.URLParam(r, "organismoID"))
	if err != nil {
		http.Error(w, "invalid organismo id", http.StatusBadRequest)
		return
	}
	persona, err := h.service.Prefill(r.Context(), organismoID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDraftNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNoApplicant), errors.Is(err, ErrNoOffice), errors.Is(err, ErrNoDateTime):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, turnos.ErrTurnoNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("wizard request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}
