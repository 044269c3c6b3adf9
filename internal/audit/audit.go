// Package audit records the operational trail of the booking system.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened, phrased the way the office reads it.
type EventType string

const (
	// EventTurnoOtorgado is logged on every confirmed booking.
	EventTurnoOtorgado EventType = "turno.otorgado"
	// EventTurnoOcupado is logged when a confirmation loses the slot race.
	EventTurnoOcupado EventType = "turno.ocupado"
	// EventAtendido is logged when staff marks an applicant as attended.
	EventAtendido EventType = "turno.atendido"
	// EventAusente is logged when staff marks a no-show.
	EventAusente EventType = "turno.no_asistido"
	// EventRechazado is logged when staff rejects a pending booking.
	EventRechazado EventType = "turno.rechazado"
	// EventBorrado is logged when a slot is removed from the pool.
	EventBorrado EventType = "turno.borrado"
	// EventCodigoLeido is logged on every barcode/credential scan.
	EventCodigoLeido EventType = "turno.codigo_leido"
	// EventNotificacionEnviada is logged after a confirmation email goes out.
	EventNotificacionEnviada EventType = "notificacion.enviada"
	// EventNotificacionRechazo is logged after a rejection email goes out.
	EventNotificacionRechazo EventType = "notificacion.rechazo_enviada"
)

// Event is an immutable audit record.
type Event struct {
	ID          string          `json:"id"`
	EventType   EventType       `json:"event_type"`
	Usuario     string          `json:"usuario,omitempty"`
	TurnoID     int64           `json:"turno_id,omitempty"`
	OficinaID   int64           `json:"oficina_id,omitempty"`
	Solicitante string          `json:"solicitante,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Filter narrows an audit query.
type Filter struct {
	EventType EventType
	OficinaID int64
	Usuario   string
	From      time.Time
	To        time.Time
	Limit     int
}

// Service writes and queries the audit trail.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Append records one event. Callers treat failures as non-fatal: the
// booking itself must never roll back because the trail was unavailable.
func (s *Service) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, usuario, turno_id, oficina_id, solicitante, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.Usuario),
		nullInt(event.TurnoID),
		nullInt(event.OficinaID),
		nullString(event.Solicitante),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to append event: %w", err)
	}
	return nil
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, usuario, turno_id, oficina_id, solicitante, details, created_at
		FROM audit_events
		WHERE 1=1
	`
	args := []any{}
	argIdx := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.OficinaID != 0 {
		query += fmt.Sprintf(" AND oficina_id = $%d", argIdx)
		args = append(args, filter.OficinaID)
		argIdx++
	}
	if filter.Usuario != "" {
		query += fmt.Sprintf(" AND usuario = $%d", argIdx)
		args = append(args, filter.Usuario)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.To)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var usuario, solicitante sql.NullString
		var turnoID, oficinaID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EventType, &usuario, &turnoID, &oficinaID, &solicitante, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Usuario = usuario.String
		e.TurnoID = turnoID.Int64
		e.OficinaID = oficinaID.Int64
		e.Solicitante = solicitante.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
