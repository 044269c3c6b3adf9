package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juaniAla/turnosColMag/internal/config"
	"github.com/juaniAla/turnosColMag/internal/turnos"
)

func newWizardRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/turnos-web/solicitante", h.Begin)
	r.Get("/turnos-web/{draftID}", h.GetDraft)
	r.Post("/turnos-web/{draftID}/oficina", h.SelectOffice)
	r.Post("/turnos-web/{draftID}/fecha-hora", h.SelectDateTime)
	r.Post("/turnos-web/{draftID}/confirmacion", h.Confirm)
	r.Get("/turnos-web/oficinas/{oficinaID}/horas-libres", h.FreeTimes)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func TestWizardOverHTTP(t *testing.T) {
	repo := turnos.NewInMemoryRepository()
	when := slotAt(2)
	repo.AddSlot(1, when)
	svc, _ := newTestService(t, repo, config.ModeTurnosWeb)
	router := newWizardRouter(NewHandler(svc, nil))

	rec := postJSON(t, router, "/turnos-web/solicitante", BeginRequest{
		Apellido: "garcia",
		Nombre:   "Ana",
		DNI:      "28123456",
		Email:    "ana.garcia@example.com",
		Motivo:   "Consulta de expediente",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var draft Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	assert.Equal(t, "GARCIA", draft.Persona.Apellido)

	rec = postJSON(t, router, "/turnos-web/"+draft.ID+"/oficina", map[string]any{"oficina_id": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/turnos-web/"+draft.ID+"/fecha-hora", map[string]any{"fecha_hora": when})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/turnos-web/"+draft.ID+"/confirmacion", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var outcome Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, Committed, outcome.Status)
	assert.NotEmpty(t, outcome.Codigo)
	assert.Equal(t, 1, outcome.Numero)
}

func TestWizardConfirmConflict(t *testing.T) {
	repo := turnos.NewInMemoryRepository()
	when := slotAt(2)
	svc, _ := newTestService(t, repo, config.ModeTurnosWeb)
	router := newWizardRouter(NewHandler(svc, nil))

	rec := postJSON(t, router, "/turnos-web/solicitante", BeginRequest{Apellido: "garcia", Motivo: "Consulta"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var draft Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))

	postJSON(t, router, "/turnos-web/"+draft.ID+"/oficina", map[string]any{"oficina_id": 1})
	postJSON(t, router, "/turnos-web/"+draft.ID+"/fecha-hora", map[string]any{"fecha_hora": when})

	// No slot exists at that time, so the confirmation reports it taken.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/turnos-web/"+draft.ID+"/confirmacion", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWizardStepGuardsOverHTTP(t *testing.T) {
	repo := turnos.NewInMemoryRepository()
	svc, _ := newTestService(t, repo, config.ModeTurnosWeb)
	router := newWizardRouter(NewHandler(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/turnos-web/no-such-draft/confirmacion", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, router, "/turnos-web/solicitante", BeginRequest{Apellido: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWizardFreeTimes(t *testing.T) {
	repo := turnos.NewInMemoryRepository()
	when := slotAt(2)
	repo.AddSlot(1, when)
	svc, _ := newTestService(t, repo, config.ModeTurnosWeb)
	router := newWizardRouter(NewHandler(svc, nil))

	url := fmt.Sprintf("/turnos-web/oficinas/1/horas-libres?fecha=%s", when.Format("2006-01-02"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Horas []time.Time `json:"horas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Horas, 1)
}
