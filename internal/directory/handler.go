package directory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/juaniAla/turnosColMag/pkg/logging"
)

// Handler serves the cascading lookups the wizard's selection screens use.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Circunscripciones handles GET /directorio/circunscripciones.
func (h *Handler) Circunscripciones(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.Circunscripciones(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// Localidades handles GET /directorio/circunscripciones/{id}/localidades.
func (h *Handler) Localidades(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	out, err := h.repo.LocalidadesByCircunscripcion(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// Oficinas handles GET /directorio/localidades/{id}/oficinas.
func (h *Handler) Oficinas(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	out, err := h.repo.OficinasHabilitadasByLocalidad(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// Organismos handles GET /directorio/organismos.
func (h *Handler) Organismos(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.Organismos(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("directory request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
