package turnos

import (
	"fmt"
	"strings"
	"time"
)

// Estado is the attendance state of a booked slot.
type Estado int

const (
	// EstadoSinAtender is the initial state of every booked slot.
	EstadoSinAtender Estado = 1
	// EstadoAtendido marks the applicant as attended.
	EstadoAtendido Estado = 2
	// EstadoAusente marks the applicant as a no-show. Terminal.
	EstadoAusente Estado = 3
	// EstadoRechazado only ever appears on rejection records; a rejected
	// slot itself is released back to the free pool.
	EstadoRechazado Estado = 4
)

func (e Estado) String() string {
	switch e {
	case EstadoSinAtender:
		return "Sin Atender"
	case EstadoAtendido:
		return "Atendido"
	case EstadoAusente:
		return "No asistió"
	case EstadoRechazado:
		return "Rechazado"
	default:
		return fmt.Sprintf("Estado(%d)", int(e))
	}
}

// Persona is the applicant snapshot attached to a booked slot. In the
// civil-hearing deployment the DNI field carries the organism code instead
// of a personal identifier.
type Persona struct {
	Apellido    string `json:"apellido"`
	Nombre      string `json:"nombre"`
	DNI         string `json:"dni"`
	Email       string `json:"email"`
	Telefono    string `json:"telefono"`
	OrganismoID int64  `json:"organismo_id,omitempty"`
}

// Display renders the applicant the way staff screens and logs show it.
func (p Persona) Display() string {
	return strings.TrimSpace(p.Apellido + ", " + p.Nombre)
}

// Flags are the civil-hearing equipment needs recorded on a slot.
type Flags struct {
	Notebook bool `json:"notebook"`
	Zoom     bool `json:"zoom"`
}

// Turno is one bookable appointment unit. Slots are pre-generated per
// office; booking attaches an applicant, releasing detaches it. The row
// identity never changes across book/release cycles.
type Turno struct {
	ID        int64     `json:"id"`
	OficinaID int64     `json:"oficina_id"`
	FechaHora time.Time `json:"fecha_hora"`
	Estado    Estado    `json:"estado"`
	Motivo    string    `json:"motivo"`
	Persona   *Persona  `json:"persona,omitempty"`
	Flags     Flags     `json:"flags"`
}

// Libre reports whether the slot is free. FREE ⇔ no applicant attached.
func (t *Turno) Libre() bool {
	return t.Persona == nil
}

// TurnoRechazado is the immutable historical record of a rejection.
type TurnoRechazado struct {
	ID               int64     `json:"id"`
	OficinaID        int64     `json:"oficina_id"`
	FechaHoraTurno   time.Time `json:"fecha_hora_turno"`
	FechaHoraRechazo time.Time `json:"fecha_hora_rechazo"`
	Motivo           string    `json:"motivo"`
	MotivoRechazo    string    `json:"motivo_rechazo"`
	Persona          Persona   `json:"persona"`
	Flags            Flags     `json:"flags"`
	EmailEnviado     bool      `json:"email_enviado"`
}

// Momento selects the time window of the staff index.
type Momento int

const (
	MomentoPasado Momento = 1
	MomentoHoy    Momento = 2
	MomentoFuturo Momento = 3
)

// Range resolves the moment to a concrete [from, to] window around now.
func (m Momento) Range(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := today.Add(24*time.Hour - time.Second)
	switch m {
	case MomentoPasado:
		return time.Date(1970, 1, 1, 0, 0, 0, 0, now.Location()), endOfDay.AddDate(0, 0, -1)
	case MomentoFuturo:
		return today.AddDate(0, 0, 1), time.Date(2200, 12, 31, 23, 59, 59, 0, now.Location())
	default:
		return today, endOfDay
	}
}

// EstadoTodos in a ListFilter matches every attendance state.
const EstadoTodos = 9

// ListFilter narrows the staff index of booked slots.
type ListFilter struct {
	Momento   Momento `json:"momento"`
	Estado    int     `json:"estado"` // 1, 2 or EstadoTodos
	OficinaID int64   `json:"oficina_id"` // 0 means every office
	Limit     int     `json:"-"`
	Offset    int     `json:"-"`
}

// DefaultListFilter is what a user sees on first visit: today's
// still-unattended bookings across their scope.
func DefaultListFilter() ListFilter {
	return ListFilter{Momento: MomentoHoy, Estado: int(EstadoSinAtender)}
}
