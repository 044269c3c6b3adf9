// Package notify builds and sends the emails of the booking lifecycle.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/juaniAla/turnosColMag/internal/config"
	"github.com/juaniAla/turnosColMag/internal/turnos"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

// OficinaLookup resolves an office id to its display name.
type OficinaLookup interface {
	OficinaNombre(ctx context.Context, id int64) (string, error)
}

// Service sends the confirmation and rejection notices of the booking flow.
type Service struct {
	email      EmailSender
	oficinas   OficinaLookup
	mode       config.DeploymentMode
	expiryDays int
	logger     *logging.Logger
}

func NewService(email EmailSender, oficinas OficinaLookup, mode config.DeploymentMode, expiryDays int, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if expiryDays <= 0 {
		expiryDays = 7
	}
	return &Service{
		email:      email,
		oficinas:   oficinas,
		mode:       mode,
		expiryDays: expiryDays,
		logger:     logger,
	}
}

// SendConfirmation emails the applicant their booking receipt. The code is
// the encrypted credential the office scans on arrival.
func (s *Service) SendConfirmation(ctx context.Context, t *turnos.Turno, codigo string) error {
	if s.email == nil {
		return fmt.Errorf("notify: email sender not configured")
	}
	if t.Libre() {
		return fmt.Errorf("notify: cannot confirm a free slot")
	}
	if t.Persona.Email == "" {
		s.logger.Debug("confirmation skipped, applicant has no email", "turno_id", t.ID)
		return nil
	}

	oficina := s.oficinaNombre(ctx, t.OficinaID)
	expiry := t.FechaHora.AddDate(0, 0, s.expiryDays)

	body := fmt.Sprintf(`Estimado/a %s:

Su turno ha sido registrado correctamente.

Fecha y hora: %s
Oficina: %s
Motivo: %s
Código de turno: %s
`,
		t.Persona.Display(),
		formatFecha(t.FechaHora),
		oficina,
		t.Motivo,
		codigo,
	)

	switch s.mode {
	case config.ModeOralidadCivil:
		body += fmt.Sprintf(`
La sala quedará reservada con notebook y enlace de Zoom para la audiencia.
Conserve este comprobante hasta el %s.
`, expiry.Format("02/01/2006"))
	default:
		body += fmt.Sprintf(`
Deberá presentarse con su DNI y este comprobante.
El comprobante tiene validez hasta el %s.
`, expiry.Format("02/01/2006"))
	}
	body += "\nPoder Judicial de Santa Fe"

	msg := EmailMessage{
		To:      t.Persona.Email,
		ToName:  t.Persona.Display(),
		Subject: "Poder Judicial Santa Fe - Confirmación de Turno",
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("notificación enviada", "turno_id", t.ID, "to", t.Persona.Email)
	return nil
}

// SendRejection emails the applicant that their pending booking was
// cancelled by the office, including the reason staff gave.
func (s *Service) SendRejection(ctx context.Context, t *turnos.Turno, motivoRechazo string) error {
	if s.email == nil {
		return fmt.Errorf("notify: email sender not configured")
	}
	if t.Libre() {
		return fmt.Errorf("notify: cannot reject a free slot")
	}
	if t.Persona.Email == "" {
		s.logger.Debug("rejection notice skipped, applicant has no email", "turno_id", t.ID)
		return nil
	}

	oficina := s.oficinaNombre(ctx, t.OficinaID)
	body := fmt.Sprintf(`Estimado/a %s:

Le informamos que su turno del %s en %s ha sido cancelado.

Motivo: %s

Podrá solicitar un nuevo turno a través del sitio web.

Poder Judicial de Santa Fe`,
		t.Persona.Display(),
		formatFecha(t.FechaHora),
		oficina,
		motivoRechazo,
	)

	msg := EmailMessage{
		To:      t.Persona.Email,
		ToName:  t.Persona.Display(),
		Subject: "Poder Judicial Santa Fe - Solicitud de Turno Cancelada",
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("notificación de rechazo enviada", "turno_id", t.ID, "to", t.Persona.Email)
	return nil
}

func (s *Service) oficinaNombre(ctx context.Context, id int64) string {
	if s.oficinas == nil {
		return fmt.Sprintf("Oficina %d", id)
	}
	nombre, err := s.oficinas.OficinaNombre(ctx, id)
	if err != nil {
		s.logger.Error("failed to resolve office name", "error", err, "oficina_id", id)
		return fmt.Sprintf("Oficina %d", id)
	}
	return nombre
}

func formatFecha(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}
