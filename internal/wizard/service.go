package wizard

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/juaniAla/turnosColMag/internal/audit"
	"github.com/juaniAla/turnosColMag/internal/config"
	"github.com/juaniAla/turnosColMag/internal/observability/metrics"
	"github.com/juaniAla/turnosColMag/internal/turnos"
	"github.com/juaniAla/turnosColMag/pkg/logging"
)

var wizardTracer = otel.Tracer("internal/wizard")

// OrganismoLookup resolves court organisms in the civil-hearing flow.
type OrganismoLookup interface {
	OrganismoCodigo(ctx context.Context, id int64) (string, error)
}

// ConfirmationNotifier emails the receipt after a successful booking.
type ConfirmationNotifier interface {
	SendConfirmation(ctx context.Context, t *turnos.Turno, codigo string) error
}

// OutcomeStatus tells the caller how a confirmation ended.
type OutcomeStatus int

const (
	// Committed means the slot is booked and the receipt minted.
	Committed OutcomeStatus = iota + 1
	// SlotTaken means someone else booked the same slot first. The draft
	// survives so the visitor can pick another time.
	SlotTaken
)

// Outcome is the result of the confirmation step.
type Outcome struct {
	Status       OutcomeStatus `json:"status"`
	Turno        *turnos.Turno `json:"turno,omitempty"`
	Codigo       string        `json:"codigo,omitempty"`
	Numero       int           `json:"numero,omitempty"`
	Alternativas []time.Time   `json:"alternativas,omitempty"`
}

// BeginInput is what the applicant step collects.
type BeginInput struct {
	Persona turnos.Persona
	Motivo  string
	Flags   turnos.Flags
}

// Service runs the booking wizard.
type Service struct {
	repo       turnos.Repository
	drafts     DraftStore
	organismos OrganismoLookup
	notifier   ConfirmationNotifier
	auditor    *audit.Service
	metrics    *metrics.BookingMetrics
	codec      turnos.CredentialCodec
	mode       config.DeploymentMode
	logger     *logging.Logger
}

func NewService(repo turnos.Repository, drafts DraftStore, organismos OrganismoLookup, notifier ConfirmationNotifier, auditor *audit.Service, m *metrics.BookingMetrics, codec turnos.CredentialCodec, mode config.DeploymentMode, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:       repo,
		drafts:     drafts,
		organismos: organismos,
		notifier:   notifier,
		auditor:    auditor,
		metrics:    m,
		codec:      codec,
		mode:       mode,
		logger:     logger,
	}
}

// Begin opens a draft with the applicant data. Names are stored uppercased
// the way the office prints them. In the civil-hearing flow the applicant
// is a court organism and its code takes the place of the DNI.
func (s *Service) Begin(ctx context.Context, input BeginInput) (*Draft, error) {
	persona := input.Persona
	persona.Apellido = strings.ToUpper(strings.TrimSpace(persona.Apellido))
	persona.Nombre = strings.ToUpper(strings.TrimSpace(persona.Nombre))
	if persona.Apellido == "" {
		return nil, ErrNoApplicant
	}

	if s.mode == config.ModeOralidadCivil && persona.OrganismoID != 0 && s.organismos != nil {
		codigo, err := s.organismos.OrganismoCodigo(ctx, persona.OrganismoID)
		if err != nil {
			return nil, err
		}
		persona.DNI = codigo
	}

	draft := newDraft()
	draft.Persona = persona
	draft.Motivo = strings.TrimSpace(input.Motivo)
	draft.Flags = input.Flags

	if err := s.drafts.Put(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Prefill offers the last applicant snapshot a court organism used, so
// repeat bookings start filled in.
func (s *Service) Prefill(ctx context.Context, organismoID int64) (*turnos.Persona, error) {
	return s.repo.LastPersonaByOrganismo(ctx, organismoID)
}

// SelectOffice records the chosen office. The civil-hearing flow always
// reserves the room with a notebook and a Zoom link.
func (s *Service) SelectOffice(ctx context.Context, draftID string, oficinaID int64) (*Draft, error) {
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.HasApplicant() {
		return nil, ErrNoApplicant
	}

	draft.OficinaID = oficinaID
	if s.mode == config.ModeOralidadCivil {
		draft.Flags = turnos.Flags{Notebook: true, Zoom: true}
	}
	// A new office invalidates any previously chosen slot.
	draft.FechaHora = time.Time{}

	if err := s.drafts.Put(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// SelectDateTime records the chosen slot time.
func (s *Service) SelectDateTime(ctx context.Context, draftID string, fechaHora time.Time) (*Draft, error) {
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.HasApplicant() {
		return nil, ErrNoApplicant
	}
	if !draft.HasOffice() {
		return nil, ErrNoOffice
	}

	draft.FechaHora = fechaHora
	if err := s.drafts.Put(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Confirm tries to book the drafted slot. Two visitors confirming the same
// slot race on the reservation itself; the loser keeps their draft and
// gets the remaining free times of the day back.
func (s *Service) Confirm(ctx context.Context, draftID string) (*Outcome, error) {
	ctx, span := wizardTracer.Start(ctx, "wizard.Confirm")
	defer span.End()
	start := time.Now()

	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	switch {
	case !draft.HasApplicant():
		return nil, ErrNoApplicant
	case !draft.HasOffice():
		return nil, ErrNoOffice
	case !draft.HasDateTime():
		return nil, ErrNoDateTime
	}

	free, err := s.repo.FindFreeSlot(ctx, draft.OficinaID, draft.FechaHora)
	if err != nil {
		if errors.Is(err, turnos.ErrTurnoNotFound) {
			return s.slotTaken(ctx, draft, start)
		}
		return nil, err
	}

	reserved, err := s.repo.Reserve(ctx, free.ID, draft.Persona, draft.Motivo, draft.Flags)
	if err != nil {
		if errors.Is(err, turnos.ErrSlotTaken) || errors.Is(err, turnos.ErrTurnoNotFound) {
			return s.slotTaken(ctx, draft, start)
		}
		return nil, err
	}

	if err := s.repo.IncrementDailyCount(ctx, reserved.OficinaID, reserved.FechaHora); err != nil {
		s.logger.Error("daily count increment failed", "error", err, "turno_id", reserved.ID)
	}
	numero, err := s.repo.DailyCount(ctx, reserved.OficinaID, reserved.FechaHora)
	if err != nil {
		s.logger.Error("daily count read failed", "error", err, "turno_id", reserved.ID)
	}

	var codigo string
	if s.codec != nil {
		codigo = s.codec.Encode(reserved.ID)
	}

	s.metrics.ObserveBooking(s.mode.String())
	s.metrics.ObserveConfirmLatency("otorgado", time.Since(start).Seconds())
	s.appendAudit(ctx, audit.Event{
		EventType:   audit.EventTurnoOtorgado,
		TurnoID:     reserved.ID,
		OficinaID:   reserved.OficinaID,
		Solicitante: reserved.Persona.Display(),
	})
	s.logger.Info("turno otorgado", "turno_id", reserved.ID, "oficina_id", reserved.OficinaID, "fecha_hora", reserved.FechaHora)

	if s.notifier != nil && reserved.Persona.Email != "" {
		if err := s.notifier.SendConfirmation(ctx, reserved, codigo); err != nil {
			s.logger.Error("confirmation notice failed", "error", err, "turno_id", reserved.ID)
		} else {
			s.appendAudit(ctx, audit.Event{
				EventType:   audit.EventNotificacionEnviada,
				TurnoID:     reserved.ID,
				OficinaID:   reserved.OficinaID,
				Solicitante: reserved.Persona.Display(),
			})
		}
	}

	if err := s.drafts.Delete(ctx, draft.ID); err != nil {
		s.logger.Error("draft cleanup failed", "error", err, "draft_id", draft.ID)
	}

	return &Outcome{
		Status: Committed,
		Turno:  reserved,
		Codigo: codigo,
		Numero: numero,
	}, nil
}

func (s *Service) slotTaken(ctx context.Context, draft *Draft, start time.Time) (*Outcome, error) {
	alternativas, err := s.repo.FreeTimesOnDate(ctx, draft.OficinaID, draft.FechaHora)
	if err != nil {
		s.logger.Error("free times lookup failed", "error", err, "oficina_id", draft.OficinaID)
	}

	s.metrics.ObserveSlotTaken()
	s.metrics.ObserveConfirmLatency("ocupado", time.Since(start).Seconds())
	s.appendAudit(ctx, audit.Event{
		EventType:   audit.EventTurnoOcupado,
		OficinaID:   draft.OficinaID,
		Solicitante: draft.Persona.Display(),
	})
	s.logger.Info("turno ocupado", "oficina_id", draft.OficinaID, "fecha_hora", draft.FechaHora)

	return &Outcome{Status: SlotTaken, Alternativas: alternativas}, nil
}

// Draft re-reads a stored draft, for rendering a step the visitor returned to.
func (s *Service) Draft(ctx context.Context, draftID string) (*Draft, error) {
	return s.drafts.Get(ctx, draftID)
}

// FreeDates lists days with at least one free slot for the office.
func (s *Service) FreeDates(ctx context.Context, oficinaID int64) ([]time.Time, error) {
	return s.repo.FreeDates(ctx, oficinaID)
}

// FreeTimesOnDate lists the free slot times of one day.
func (s *Service) FreeTimesOnDate(ctx context.Context, oficinaID int64, fecha time.Time) ([]time.Time, error) {
	return s.repo.FreeTimesOnDate(ctx, oficinaID, fecha)
}

// FullyBookedDates lists days with no free slot left, for greying out the
// calendar between the first and last bookable day.
func (s *Service) FullyBookedDates(ctx context.Context, oficinaID int64) ([]time.Time, error) {
	from, err := s.repo.FirstAvailableDate(ctx, oficinaID)
	if err != nil {
		if errors.Is(err, turnos.ErrTurnoNotFound) {
			return nil, nil
		}
		return nil, err
	}
	to, err := s.repo.LastAvailableDate(ctx, oficinaID)
	if err != nil {
		return nil, err
	}
	return s.repo.FullyBookedDates(ctx, oficinaID, from, to)
}

func (s *Service) appendAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Append(ctx, event); err != nil {
		s.logger.Error("audit append failed", "error", err, "event_type", string(event.EventType))
	}
}
