// Package wizard drives the public step-by-step booking flow. Each visitor
// accumulates a draft (applicant, office, date and time) and nothing
// touches the slot pool until the final confirmation.
package wizard

import (
	"time"

	"github.com/google/uuid"

	"github.com/juaniAla/turnosColMag/internal/turnos"
)

// Draft is the in-progress booking of one visitor. It lives in the draft
// store under its ID until confirmed or expired.
type Draft struct {
	ID        string         `json:"id"`
	Persona   turnos.Persona `json:"persona"`
	Motivo    string         `json:"motivo"`
	Flags     turnos.Flags   `json:"flags"`
	OficinaID int64          `json:"oficina_id"`
	FechaHora time.Time      `json:"fecha_hora"`
	CreatedAt time.Time      `json:"created_at"`
}

func newDraft() *Draft {
	return &Draft{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// HasApplicant reports whether the applicant step completed.
func (d *Draft) HasApplicant() bool {
	return d.Persona.Apellido != ""
}

// HasOffice reports whether the office step completed.
func (d *Draft) HasOffice() bool {
	return d.OficinaID != 0
}

// HasDateTime reports whether a slot was chosen.
func (d *Draft) HasDateTime() bool {
	return !d.FechaHora.IsZero()
}
