package turnos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/juaniAla/turnosColMag/internal/audit"
	"github.com/juaniAla/turnosColMag/internal/observability/metrics"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

var turnosTracer = otel.Tracer("internal/turnos")

// Notifier sends the applicant-facing emails of the staff operations.
type Notifier interface {
	SendRejection(ctx context.Context, t *Turno, motivoRechazo string) error
}

// CredentialCodec mints and resolves the opaque booking codes printed on
// receipts and scanned at the front desk.
type CredentialCodec interface {
	Encode(id int64) string
	Decode(code string) (int64, error)
}

// Receipt is what the applicant walks away with after booking. QR holds
// the plain-text payload the client renders into the printed code image.
type Receipt struct {
	Turno  *Turno `json:"turno"`
	Codigo string `json:"codigo"`
	QR     string `json:"qr"`
}

func qrPayload(t *Turno) string {
	lines := []string{t.FechaHora.Format("02/01/2006 15:04")}
	if p := t.Persona; p != nil {
		if p.OrganismoID != 0 {
			lines = append(lines, p.DNI+" - "+p.Display())
		} else {
			lines = append(lines, p.Display())
		}
	}
	if t.Motivo != "" {
		lines = append(lines, t.Motivo)
	}
	return strings.Join(lines, "\n")
}

// Occupancy is the agenda usage snapshot staff see per office.
type Occupancy struct {
	OficinaID  int64   `json:"oficina_id"`
	Total      int     `json:"total"`
	Asignados  int     `json:"asignados"`
	Porcentaje float64 `json:"porcentaje"`
}

// Service implements the staff operations over the slot pool.
type Service struct {
	repo           Repository
	notifier       Notifier
	auditor        *audit.Service
	metrics        *metrics.BookingMetrics
	codec          CredentialCodec
	logger         *logging.Logger
	defaultRechazo string
}

func NewService(repo Repository, notifier Notifier, auditor *audit.Service, m *metrics.BookingMetrics, codec CredentialCodec, defaultRechazo string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:           repo,
		notifier:       notifier,
		auditor:        auditor,
		metrics:        m,
		codec:          codec,
		logger:         logger,
		defaultRechazo: defaultRechazo,
	}
}

// ToggleAttendance flips a booked slot between pending and attended. Any
// other starting state is rejected.
func (s *Service) ToggleAttendance(ctx context.Context, id int64, usuario string) (*Turno, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Libre() {
		return nil, ErrInvalidTransition
	}

	var to Estado
	switch t.Estado {
	case EstadoSinAtender:
		to = EstadoAtendido
	case EstadoAtendido:
		to = EstadoSinAtender
	default:
		return nil, ErrInvalidTransition
	}

	if err := s.repo.TransitionEstado(ctx, id, t.Estado, to); err != nil {
		return nil, err
	}
	t.Estado = to

	s.metrics.ObserveAttendance(to.String())
	s.appendAudit(ctx, audit.Event{
		EventType:   audit.EventAtendido,
		Usuario:     usuario,
		TurnoID:     id,
		OficinaID:   t.OficinaID,
		Solicitante: t.Persona.Display(),
		Details:     jsonDetails(map[string]string{"estado": to.String()}),
	})
	s.logger.Info("marca como atendido", "turno_id", id, "estado", to.String(), "usuario", usuario)
	return t, nil
}

// MarkAbsent records a no-show. Only a pending booking can become absent,
// and the state is terminal.
func (s *Service) MarkAbsent(ctx context.Context, id int64, usuario string) (*Turno, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Libre() {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.TransitionEstado(ctx, id, EstadoSinAtender, EstadoAusente); err != nil {
		return nil, err
	}
	t.Estado = EstadoAusente

	s.metrics.ObserveAttendance(EstadoAusente.String())
	s.appendAudit(ctx, audit.Event{
		EventType:   audit.EventAusente,
		Usuario:     usuario,
		TurnoID:     id,
		OficinaID:   t.OficinaID,
		Solicitante: t.Persona.Display(),
	})
	s.logger.Info("marca como ausente", "turno_id", id, "usuario", usuario)
	return t, nil
}

// Reject cancels a pending booking: a historical record is kept, the slot
// returns to the free pool, and the applicant is notified when staff asked
// for it.
func (s *Service) Reject(ctx context.Context, id int64, motivoRechazo string, notify bool, usuario string) (*TurnoRechazado, error) {
	ctx, span := turnosTracer.Start(ctx, "turnos.Reject")
	defer span.End()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Libre() || t.Estado != EstadoSinAtender {
		return nil, ErrInvalidTransition
	}

	if motivoRechazo == "" {
		motivoRechazo = s.defaultRechazo
	}

	// The notice must go out before the release wipes the applicant off
	// the slot. A failed send never blocks the rejection itself.
	emailEnviado := false
	if notify && s.notifier != nil && t.Persona.Email != "" {
		if err := s.notifier.SendRejection(ctx, t, motivoRechazo); err != nil {
			s.logger.Error("rejection notice failed", "error", err, "turno_id", id)
		} else {
			emailEnviado = true
			s.appendAudit(ctx, audit.Event{
				EventType:   audit.EventNotificacionRechazo,
				Usuario:     usuario,
				TurnoID:     id,
				OficinaID:   t.OficinaID,
				Solicitante: t.Persona.Display(),
			})
		}
	}

	rec, err := s.repo.Reject(ctx, id, motivoRechazo, emailEnviado)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRejection(emailEnviado)
	s.appendAudit(ctx, audit.Event{
		EventType:   audit.EventRechazado,
		Usuario:     usuario,
		TurnoID:     id,
		OficinaID:   rec.OficinaID,
		Solicitante: rec.Persona.Display(),
		Details:     jsonDetails(map[string]string{"motivo_rechazo": motivoRechazo}),
	})
	s.logger.Info("marca como rechazado", "turno_id", id, "usuario", usuario, "email_enviado", emailEnviado)
	return rec, nil
}

// Delete removes a slot from the pool entirely.
func (s *Service) Delete(ctx context.Context, id int64, usuario string) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.appendAudit(ctx, audit.Event{
		EventType: audit.EventBorrado,
		Usuario:   usuario,
		TurnoID:   id,
		OficinaID: t.OficinaID,
	})
	s.logger.Info("turno borrado", "turno_id", id, "usuario", usuario)
	return nil
}

// Receipt mints the printable credential for a booked slot.
func (s *Service) Receipt(ctx context.Context, id int64) (*Receipt, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Libre() {
		return nil, ErrTurnoNotFound
	}
	return &Receipt{Turno: t, Codigo: s.codec.Encode(id), QR: qrPayload(t)}, nil
}

// ResolveCredential decodes a scanned booking code back to its slot.
func (s *Service) ResolveCredential(ctx context.Context, code, usuario string) (*Turno, error) {
	id, err := s.codec.Decode(code)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, audit.Event{
		EventType: audit.EventCodigoLeido,
		Usuario:   usuario,
		TurnoID:   id,
		OficinaID: t.OficinaID,
	})
	s.logger.Info("lee código de barras", "turno_id", id, "usuario", usuario)
	return t, nil
}

// List returns the staff index for the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Turno, error) {
	return s.repo.List(ctx, filter)
}

// Occupancy reports how full the upcoming agenda of an office is.
func (s *Service) Occupancy(ctx context.Context, oficinaID int64) (Occupancy, error) {
	total, err := s.repo.CountSlots(ctx, oficinaID)
	if err != nil {
		return Occupancy{}, err
	}
	asignados, err := s.repo.CountAssigned(ctx, oficinaID)
	if err != nil {
		return Occupancy{}, err
	}
	occ := Occupancy{OficinaID: oficinaID, Total: total, Asignados: asignados}
	if total > 0 {
		occ.Porcentaje = float64(asignados) / float64(total) * 100
	}
	return occ, nil
}

func (s *Service) appendAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Append(ctx, event); err != nil {
		s.logger.Error("audit append failed", "error", err, "event_type", string(event.EventType))
	}
}

func jsonDetails(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// DailySummary is a convenience for receipts printed by the office: how
// many bookings the office granted on the slot's day.
func (s *Service) DailySummary(ctx context.Context, oficinaID int64, fecha time.Time) (int, error) {
	n, err := s.repo.DailyCount(ctx, oficinaID, fecha)
	if err != nil {
		return 0, fmt.Errorf("turnos: daily summary: %w", err)
	}
	return n, nil
}
