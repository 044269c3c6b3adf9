package turnos

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Repository is the slot store: it owns the Turno and daily-count
// lifecycle. Implementations must make Reserve atomic so that at most one
// of N concurrent reservations against the same slot succeeds.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Turno, error)

	// FindFreeSlot returns the slot at the exact office+instant only if
	// it is currently free. The result is advisory: Reserve re-checks.
	FindFreeSlot(ctx context.Context, oficinaID int64, fechaHora time.Time) (*Turno, error)

	// Reserve attaches the applicant to a free slot. It fails with
	// ErrSlotTaken when the slot was booked between the caller's
	// FindFreeSlot and this call.
	Reserve(ctx context.Context, id int64, persona Persona, motivo string, flags Flags) (*Turno, error)

	// Release detaches the applicant and clears notes and flags. The
	// slot keeps its identity and becomes bookable again.
	Release(ctx context.Context, id int64) error

	// TransitionEstado moves a booked slot between attendance states,
	// guarded by the expected current state.
	TransitionEstado(ctx context.Context, id int64, from, to Estado) error

	// Reject snapshots a rejection record and releases the slot in one
	// atomic unit. Only unattended booked slots can be rejected.
	Reject(ctx context.Context, id int64, motivoRechazo string, emailEnviado bool) (*TurnoRechazado, error)

	Delete(ctx context.Context, id int64) error

	// IncrementDailyCount bumps the per-office-per-day booking counter,
	// creating the row on the first booking of the day. Concurrent
	// increments must not lose updates.
	IncrementDailyCount(ctx context.Context, oficinaID int64, fecha time.Time) error
	DailyCount(ctx context.Context, oficinaID int64, fecha time.Time) (int, error)

	FirstAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error)
	LastAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error)

	// FullyBookedDates returns the calendar days in [from, to] with no
	// free slot, holidays (days with no slots generated) included.
	FullyBookedDates(ctx context.Context, oficinaID int64, from, to time.Time) ([]time.Time, error)

	// FreeDates returns the future days with at least one free slot.
	FreeDates(ctx context.Context, oficinaID int64) ([]time.Time, error)

	// FreeTimesOnDate returns the free instants of one calendar day.
	FreeTimesOnDate(ctx context.Context, oficinaID int64, fecha time.Time) ([]time.Time, error)

	// List returns booked slots for the staff index.
	List(ctx context.Context, filter ListFilter) ([]*Turno, error)

	CountAssigned(ctx context.Context, oficinaID int64) (int, error)
	CountSlots(ctx context.Context, oficinaID int64) (int, error)

	// LastPersonaByOrganismo returns the applicant data of the most
	// recent booking made for the organism, for form prefill.
	LastPersonaByOrganismo(ctx context.Context, organismoID int64) (*Persona, error)
}

// InMemoryRepository keeps the slot pool in process memory. It backs tests
// and local development with the same reservation semantics as Postgres.
type InMemoryRepository struct {
	mu       sync.Mutex
	slots    map[int64]*Turno
	counts   map[string]int
	rejected []*TurnoRechazado
	nextID   int64
}

// NewInMemoryRepository creates an empty in-memory slot store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		slots:  make(map[int64]*Turno),
		counts: make(map[string]int),
		nextID: 1,
	}
}

// AddSlot seeds a free slot, returning its id.
func (r *InMemoryRepository) AddSlot(oficinaID int64, fechaHora time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.slots[id] = &Turno{
		ID:        id,
		OficinaID: oficinaID,
		FechaHora: fechaHora,
		Estado:    EstadoSinAtender,
	}
	return id
}

// Rechazados returns the accumulated rejection records.
func (r *InMemoryRepository) Rechazados() []*TurnoRechazado {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TurnoRechazado, len(r.rejected))
	copy(out, r.rejected)
	return out
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Turno, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[id]
	if !ok {
		return nil, ErrTurnoNotFound
	}
	return cloneTurno(t), nil
}

func (r *InMemoryRepository) FindFreeSlot(ctx context.Context, oficinaID int64, fechaHora time.Time) (*Turno, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.slots {
		if t.OficinaID == oficinaID && t.FechaHora.Equal(fechaHora) && t.Libre() {
			return cloneTurno(t), nil
		}
	}
	return nil, ErrTurnoNotFound
}

func (r *InMemoryRepository) Reserve(ctx context.Context, id int64, persona Persona, motivo string, flags Flags) (*Turno, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[id]
	if !ok {
		return nil, ErrTurnoNotFound
	}
	// Check-and-set under the lock: the free check and the applicant
	// attach are one atomic unit.
	if !t.Libre() {
		return nil, ErrSlotTaken
	}

	p := persona
	t.Persona = &p
	t.Motivo = motivo
	t.Flags = flags
	t.Estado = EstadoSinAtender
	return cloneTurno(t), nil
}

func (r *InMemoryRepository) Release(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(id)
}

func (r *InMemoryRepository) releaseLocked(id int64) error {
	t, ok := r.slots[id]
	if !ok {
		return ErrTurnoNotFound
	}
	t.Persona = nil
	t.Motivo = ""
	t.Flags = Flags{}
	t.Estado = EstadoSinAtender
	return nil
}

func (r *InMemoryRepository) TransitionEstado(ctx context.Context, id int64, from, to Estado) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[id]
	if !ok {
		return ErrTurnoNotFound
	}
	if t.Libre() || t.Estado != from {
		return ErrInvalidTransition
	}
	t.Estado = to
	return nil
}

func (r *InMemoryRepository) Reject(ctx context.Context, id int64, motivoRechazo string, emailEnviado bool) (*TurnoRechazado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[id]
	if !ok {
		return nil, ErrTurnoNotFound
	}
	if t.Libre() || t.Estado != EstadoSinAtender {
		return nil, ErrInvalidTransition
	}

	rec := &TurnoRechazado{
		ID:               int64(len(r.rejected) + 1),
		OficinaID:        t.OficinaID,
		FechaHoraTurno:   t.FechaHora,
		FechaHoraRechazo: time.Now(),
		Motivo:           t.Motivo,
		MotivoRechazo:    motivoRechazo,
		Persona:          *t.Persona,
		Flags:            t.Flags,
		EmailEnviado:     emailEnviado,
	}
	r.rejected = append(r.rejected, rec)

	if err := r.releaseLocked(id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[id]; !ok {
		return ErrTurnoNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *InMemoryRepository) IncrementDailyCount(ctx context.Context, oficinaID int64, fecha time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[dailyCountKey(oficinaID, fecha)]++
	return nil
}

func (r *InMemoryRepository) DailyCount(ctx context.Context, oficinaID int64, fecha time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[dailyCountKey(oficinaID, fecha)], nil
}

func (r *InMemoryRepository) FirstAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error) {
	return r.boundaryDate(oficinaID, true)
}

func (r *InMemoryRepository) LastAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error) {
	return r.boundaryDate(oficinaID, false)
}

func (r *InMemoryRepository) boundaryDate(oficinaID int64, first bool) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found bool
	var best time.Time
	for _, t := range r.slots {
		if t.OficinaID != oficinaID || !t.Libre() {
			continue
		}
		if !found || (first && t.FechaHora.Before(best)) || (!first && t.FechaHora.After(best)) {
			best = t.FechaHora
			found = true
		}
	}
	if !found {
		return time.Time{}, ErrTurnoNotFound
	}
	return best, nil
}

func (r *InMemoryRepository) FullyBookedDates(ctx context.Context, oficinaID int64, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	free := make(map[string]bool)
	for _, t := range r.slots {
		if t.OficinaID == oficinaID && t.Libre() {
			free[dayKey(t.FechaHora)] = true
		}
	}
	r.mu.Unlock()

	var out []time.Time
	for d := truncateToDay(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !free[dayKey(d)] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) FreeDates(ctx context.Context, oficinaID int64) ([]time.Time, error) {
	r.mu.Lock()
	seen := make(map[string]time.Time)
	for _, t := range r.slots {
		if t.OficinaID == oficinaID && t.Libre() {
			seen[dayKey(t.FechaHora)] = truncateToDay(t.FechaHora)
		}
	}
	r.mu.Unlock()

	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *InMemoryRepository) FreeTimesOnDate(ctx context.Context, oficinaID int64, fecha time.Time) ([]time.Time, error) {
	r.mu.Lock()
	var out []time.Time
	for _, t := range r.slots {
		if t.OficinaID == oficinaID && t.Libre() && sameDay(t.FechaHora, fecha) {
			out = append(out, t.FechaHora)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Turno, error) {
	from, to := filter.Momento.Range(time.Now())

	r.mu.Lock()
	var out []*Turno
	for _, t := range r.slots {
		if t.Libre() {
			continue
		}
		if filter.OficinaID != 0 && t.OficinaID != filter.OficinaID {
			continue
		}
		if t.FechaHora.Before(from) || t.FechaHora.After(to) {
			continue
		}
		if filter.Estado != EstadoTodos && int(t.Estado) != filter.Estado {
			continue
		}
		out = append(out, cloneTurno(t))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FechaHora.Before(out[j].FechaHora) })
	return out, nil
}

func (r *InMemoryRepository) CountAssigned(ctx context.Context, oficinaID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.slots {
		if t.OficinaID == oficinaID && !t.Libre() {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) CountSlots(ctx context.Context, oficinaID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.slots {
		if t.OficinaID == oficinaID {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) LastPersonaByOrganismo(ctx context.Context, organismoID int64) (*Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Turno
	for _, t := range r.slots {
		if t.Libre() || t.Persona.OrganismoID != organismoID {
			continue
		}
		if best == nil || t.FechaHora.After(best.FechaHora) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrTurnoNotFound
	}
	p := *best.Persona
	return &p, nil
}

func cloneTurno(t *Turno) *Turno {
	c := *t
	if t.Persona != nil {
		p := *t.Persona
		c.Persona = &p
	}
	return &c
}

func dailyCountKey(oficinaID int64, fecha time.Time) string {
	return fecha.Format("2006-01-02") + "/" + strconv.FormatInt(oficinaID, 10)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
