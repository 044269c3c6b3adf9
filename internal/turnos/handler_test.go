package turnos

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juaniAla/turnosColMag/internal/actor"
)

func newTestRouter(h *Handler, act *actor.Actor) http.Handler {
	r := chi.NewRouter()
	if act != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(actor.WithActor(req.Context(), *act)))
			})
		})
	}
	r.Get("/turnos", h.List)
	r.Put("/turnos/{id}/atendido", h.ToggleAttendance)
	r.Put("/turnos/{id}/no-asistido", h.MarkAbsent)
	r.Post("/turnos/{id}/rechazo", h.Reject)
	r.Delete("/turnos/{id}", h.Delete)
	r.Get("/turnos/{id}/comprobante", h.Receipt)
	r.Post("/turnos/scan", h.Scan)
	r.Get("/turnos/ocupacion", h.Occupancy)
	return r
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func staffActor() *actor.Actor {
	return &actor.Actor{Username: "mperez", OficinaID: 1, Roles: []string{actor.RoleUser}}
}

func adminActor() *actor.Actor {
	return &actor.Actor{Username: "admin", Roles: []string{actor.RoleAdmin}}
}

func TestHandlerToggleAttendance(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, staffActor())
	id := bookedSlot(t, repo, 1)

	req := httptest.NewRequest(http.MethodPut, "/turnos/"+itoa(id)+"/atendido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Turno
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, EstadoAtendido, got.Estado)
}

func TestHandlerMarkAbsentConflict(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, staffActor())
	id := repo.AddSlot(1, futureSlotTime(1))

	req := httptest.NewRequest(http.MethodPut, "/turnos/"+itoa(id)+"/no-asistido", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRequiresActor(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/turnos", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerReject(t *testing.T) {
	repo := NewInMemoryRepository()
	notifier := &fakeNotifier{}
	h := NewHandler(newTestService(repo, notifier), nil, nil)
	router := newTestRouter(h, staffActor())
	id := bookedSlot(t, repo, 1)

	body := bytes.NewBufferString(`{"motivo_rechazo":"Documentación incompleta","notificar":true}`)
	req := httptest.NewRequest(http.MethodPost, "/turnos/"+itoa(id)+"/rechazo", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got TurnoRechazado
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Documentación incompleta", got.MotivoRechazo)
	assert.True(t, got.EmailEnviado)
	assert.Equal(t, []int64{id}, notifier.rejections)
}

func TestHandlerRejectWithoutNotice(t *testing.T) {
	repo := NewInMemoryRepository()
	notifier := &fakeNotifier{}
	h := NewHandler(newTestService(repo, notifier), nil, nil)
	router := newTestRouter(h, staffActor())
	id := bookedSlot(t, repo, 1)

	body := bytes.NewBufferString(`{"motivo_rechazo":"motivo","notificar":false}`)
	req := httptest.NewRequest(http.MethodPost, "/turnos/"+itoa(id)+"/rechazo", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got TurnoRechazado
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.EmailEnviado)
	assert.Empty(t, notifier.rejections)
}

func TestHandlerRejectEmptyBodyUsesDefault(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, &fakeNotifier{}), nil, nil)
	router := newTestRouter(h, staffActor())
	id := bookedSlot(t, repo, 1)

	req := httptest.NewRequest(http.MethodPost, "/turnos/"+itoa(id)+"/rechazo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got TurnoRechazado
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "La Oficina no podrá atenderlo", got.MotivoRechazo)
}

func TestHandlerDeleteNeedsAdmin(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	id := bookedSlot(t, repo, 1)

	rec := httptest.NewRecorder()
	newTestRouter(h, staffActor()).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/turnos/"+itoa(id), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(h, adminActor()).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/turnos/"+itoa(id), nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerScan(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo, nil)
	h := NewHandler(svc, nil, nil)
	router := newTestRouter(h, staffActor())
	id := bookedSlot(t, repo, 1)

	receipt, err := svc.Receipt(context.Background(), id)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"codigo": receipt.Codigo})
	req := httptest.NewRequest(http.MethodPost, "/turnos/scan", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Turno
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
}

func TestHandlerOccupancy(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, staffActor())
	bookedSlot(t, repo, 1)
	repo.AddSlot(1, futureSlotTime(3))

	req := httptest.NewRequest(http.MethodGet, "/turnos/ocupacion?oficina_id=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Occupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Asignados)
}

func TestHandlerOccupancyScopedToOwnOffice(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, staffActor())

	repo.AddSlot(1, futureSlotTime(3))
	bookedSlot(t, repo, 2)

	// A regular staff member of office 1 asks for office 2 and still gets
	// their own office back.
	req := httptest.NewRequest(http.MethodGet, "/turnos/ocupacion?oficina_id=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Occupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.OficinaID)
	assert.Equal(t, 0, got.Asignados)
}

func TestHandlerOccupancyAdminPicksOffice(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, adminActor())
	bookedSlot(t, repo, 2)

	req := httptest.NewRequest(http.MethodGet, "/turnos/ocupacion?oficina_id=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Occupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(2), got.OficinaID)
	assert.Equal(t, 1, got.Asignados)
}

func TestHandlerListFiltersToOwnOffice(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewHandler(newTestService(repo, nil), nil, nil)
	router := newTestRouter(h, staffActor())

	mine := bookedSlot(t, repo, 1)
	bookedSlot(t, repo, 2)

	req := httptest.NewRequest(http.MethodGet, "/turnos?momento=3&estado=9&oficina_id=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Turnos []*Turno   `json:"turnos"`
		Filtro ListFilter `json:"filtro"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	// The requested office is overridden by the actor's own office.
	require.Len(t, got.Turnos, 1)
	assert.Equal(t, mine, got.Turnos[0].ID)
	assert.Equal(t, int64(1), got.Filtro.OficinaID)
}

func TestHandlerListSavedFilter(t *testing.T) {
	repo := NewInMemoryRepository()
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	filters := NewFilterStore(client, 0)
	h := NewHandler(newTestService(repo, nil), filters, nil)
	router := newTestRouter(h, adminActor())

	id := bookedSlot(t, repo, 2)

	// First request with explicit params persists the filter.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/turnos?momento=3&estado=9", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Second request without params replays it.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/turnos", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Turnos []*Turno   `json:"turnos"`
		Filtro ListFilter `json:"filtro"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, MomentoFuturo, got.Filtro.Momento)
	require.Len(t, got.Turnos, 1)
	assert.Equal(t, id, got.Turnos[0].ID)
}
