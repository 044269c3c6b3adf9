package turnos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// db is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores the slot pool in the relational database.
type PostgresRepository struct {
	pool db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("turnos: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithDB(pool db) *PostgresRepository {
	if pool == nil {
		panic("turnos: db required")
	}
	return &PostgresRepository{pool: pool}
}

const turnoColumns = `
	id, oficina_id, fecha_hora, estado, motivo,
	persona_apellido, persona_nombre, persona_dni, persona_email,
	persona_telefono, persona_organismo_id, notebook, zoom`

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Turno, error) {
	query := `SELECT` + turnoColumns + ` FROM turnos WHERE id = $1`
	t, err := scanTurno(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnoNotFound
		}
		return nil, fmt.Errorf("turnos: get by id: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindFreeSlot(ctx context.Context, oficinaID int64, fechaHora time.Time) (*Turno, error) {
	query := `
		SELECT` + turnoColumns + `
		FROM turnos
		WHERE oficina_id = $1 AND fecha_hora = $2 AND persona_apellido IS NULL
	`
	t, err := scanTurno(r.pool.QueryRow(ctx, query, oficinaID, fechaHora))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnoNotFound
		}
		return nil, fmt.Errorf("turnos: find free slot: %w", err)
	}
	return t, nil
}

// Reserve flips a free slot to booked with one conditional update: the
// WHERE clause re-checks that no applicant is attached, so concurrent
// attempts serialize on the row and exactly one wins.
func (r *PostgresRepository) Reserve(ctx context.Context, id int64, persona Persona, motivo string, flags Flags) (*Turno, error) {
	query := `
		UPDATE turnos
		SET persona_apellido = $2, persona_nombre = $3, persona_dni = $4,
			persona_email = $5, persona_telefono = $6, persona_organismo_id = $7,
			motivo = $8, notebook = $9, zoom = $10, estado = $11
		WHERE id = $1 AND persona_apellido IS NULL
		RETURNING` + turnoColumns
	t, err := scanTurno(r.pool.QueryRow(ctx, query,
		id,
		persona.Apellido,
		persona.Nombre,
		persona.DNI,
		nullIfEmpty(persona.Email),
		nullIfEmpty(persona.Telefono),
		nullIfZero(persona.OrganismoID),
		motivo,
		flags.Notebook,
		flags.Zoom,
		EstadoSinAtender,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("turnos: reserve: %w", err)
	}

	// No row matched: either the slot does not exist or it was booked in
	// the meantime. Tell the two apart for the caller.
	var exists int
	checkErr := r.pool.QueryRow(ctx, `SELECT 1 FROM turnos WHERE id = $1`, id).Scan(&exists)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return nil, ErrTurnoNotFound
		}
		return nil, fmt.Errorf("turnos: reserve existence check: %w", checkErr)
	}
	return nil, ErrSlotTaken
}

func (r *PostgresRepository) Release(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, releaseQuery, id, EstadoSinAtender)
	if err != nil {
		return fmt.Errorf("turnos: release: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTurnoNotFound
	}
	return nil
}

const releaseQuery = `
	UPDATE turnos
	SET persona_apellido = NULL, persona_nombre = NULL, persona_dni = NULL,
		persona_email = NULL, persona_telefono = NULL, persona_organismo_id = NULL,
		motivo = '', notebook = false, zoom = false, estado = $2
	WHERE id = $1
`

func (r *PostgresRepository) TransitionEstado(ctx context.Context, id int64, from, to Estado) error {
	query := `
		UPDATE turnos
		SET estado = $3
		WHERE id = $1 AND estado = $2 AND persona_apellido IS NOT NULL
	`
	ct, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("turnos: transition estado: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists int
	if checkErr := r.pool.QueryRow(ctx, `SELECT 1 FROM turnos WHERE id = $1`, id).Scan(&exists); checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return ErrTurnoNotFound
		}
		return fmt.Errorf("turnos: transition existence check: %w", checkErr)
	}
	return ErrInvalidTransition
}

// Reject snapshots the rejection record and releases the slot inside one
// transaction, with the row locked while both writes happen.
func (r *PostgresRepository) Reject(ctx context.Context, id int64, motivoRechazo string, emailEnviado bool) (*TurnoRechazado, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("turnos: reject begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT` + turnoColumns + ` FROM turnos WHERE id = $1 FOR UPDATE`
	t, err := scanTurno(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnoNotFound
		}
		return nil, fmt.Errorf("turnos: reject load: %w", err)
	}
	if t.Libre() || t.Estado != EstadoSinAtender {
		return nil, ErrInvalidTransition
	}

	rec := &TurnoRechazado{
		OficinaID:      t.OficinaID,
		FechaHoraTurno: t.FechaHora,
		Motivo:         t.Motivo,
		MotivoRechazo:  motivoRechazo,
		Persona:        *t.Persona,
		Flags:          t.Flags,
		EmailEnviado:   emailEnviado,
	}
	insert := `
		INSERT INTO turnos_rechazados (
			oficina_id, fecha_hora_turno, motivo, motivo_rechazo,
			persona_apellido, persona_nombre, persona_dni, persona_email,
			persona_telefono, persona_organismo_id, notebook, zoom, email_enviado
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, fecha_hora_rechazo
	`
	if err := tx.QueryRow(ctx, insert,
		rec.OficinaID,
		rec.FechaHoraTurno,
		rec.Motivo,
		rec.MotivoRechazo,
		rec.Persona.Apellido,
		rec.Persona.Nombre,
		rec.Persona.DNI,
		nullIfEmpty(rec.Persona.Email),
		nullIfEmpty(rec.Persona.Telefono),
		nullIfZero(rec.Persona.OrganismoID),
		rec.Flags.Notebook,
		rec.Flags.Zoom,
		rec.EmailEnviado,
	).Scan(&rec.ID, &rec.FechaHoraRechazo); err != nil {
		return nil, fmt.Errorf("turnos: reject insert record: %w", err)
	}

	if _, err := tx.Exec(ctx, releaseQuery, id, EstadoSinAtender); err != nil {
		return nil, fmt.Errorf("turnos: reject release: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("turnos: reject commit: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM turnos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("turnos: delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTurnoNotFound
	}
	return nil
}

// IncrementDailyCount bumps the counter with a single upsert so concurrent
// bookings for the same office+day never lose an update.
func (r *PostgresRepository) IncrementDailyCount(ctx context.Context, oficinaID int64, fecha time.Time) error {
	query := `
		INSERT INTO turnos_diarios (oficina_id, fecha, cantidad)
		VALUES ($1, $2, 1)
		ON CONFLICT (oficina_id, fecha)
		DO UPDATE SET cantidad = turnos_diarios.cantidad + 1
	`
	if _, err := r.pool.Exec(ctx, query, oficinaID, truncateToDay(fecha)); err != nil {
		return fmt.Errorf("turnos: increment daily count: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DailyCount(ctx context.Context, oficinaID int64, fecha time.Time) (int, error) {
	query := `SELECT cantidad FROM turnos_diarios WHERE oficina_id = $1 AND fecha = $2`
	var n int
	if err := r.pool.QueryRow(ctx, query, oficinaID, truncateToDay(fecha)).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("turnos: daily count: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) FirstAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error) {
	return r.boundaryDate(ctx, oficinaID, "MIN")
}

func (r *PostgresRepository) LastAvailableDate(ctx context.Context, oficinaID int64) (time.Time, error) {
	return r.boundaryDate(ctx, oficinaID, "MAX")
}

func (r *PostgresRepository) boundaryDate(ctx context.Context, oficinaID int64, agg string) (time.Time, error) {
	query := `
		SELECT ` + agg + `(fecha_hora)
		FROM turnos
		WHERE oficina_id = $1 AND persona_apellido IS NULL AND fecha_hora >= NOW()
	`
	var d *time.Time
	if err := r.pool.QueryRow(ctx, query, oficinaID).Scan(&d); err != nil {
		return time.Time{}, fmt.Errorf("turnos: available date bound: %w", err)
	}
	if d == nil {
		return time.Time{}, ErrTurnoNotFound
	}
	return *d, nil
}

// FullyBookedDates resolves the whole range with one indexed query instead
// of probing the pool day by day.
func (r *PostgresRepository) FullyBookedDates(ctx context.Context, oficinaID int64, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT d::date
		FROM generate_series($2::date, $3::date, interval '1 day') AS d
		WHERE NOT EXISTS (
			SELECT 1 FROM turnos t
			WHERE t.oficina_id = $1 AND t.persona_apellido IS NULL
				AND t.fecha_hora >= d AND t.fecha_hora < d + interval '1 day'
		)
		ORDER BY d
	`
	return r.queryDates(ctx, query, oficinaID, truncateToDay(from), truncateToDay(to))
}

func (r *PostgresRepository) FreeDates(ctx context.Context, oficinaID int64) ([]time.Time, error) {
	query := `
		SELECT DISTINCT fecha_hora::date
		FROM turnos
		WHERE oficina_id = $1 AND persona_apellido IS NULL AND fecha_hora >= NOW()
		ORDER BY 1
	`
	return r.queryDates(ctx, query, oficinaID)
}

func (r *PostgresRepository) FreeTimesOnDate(ctx context.Context, oficinaID int64, fecha time.Time) ([]time.Time, error) {
	query := `
		SELECT fecha_hora
		FROM turnos
		WHERE oficina_id = $1 AND persona_apellido IS NULL
			AND fecha_hora >= $2 AND fecha_hora < $3
		ORDER BY fecha_hora
	`
	day := truncateToDay(fecha)
	return r.queryDates(ctx, query, oficinaID, day, day.AddDate(0, 0, 1))
}

func (r *PostgresRepository) queryDates(ctx context.Context, query string, args ...any) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("turnos: query dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("turnos: scan date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Turno, error) {
	from, to := filter.Momento.Range(time.Now())

	query := `SELECT` + turnoColumns + `
		FROM turnos
		WHERE persona_apellido IS NOT NULL AND fecha_hora BETWEEN $1 AND $2`
	args := []any{from, to}
	argIdx := 3

	if filter.Estado != EstadoTodos {
		query += fmt.Sprintf(" AND estado = $%d", argIdx)
		args = append(args, filter.Estado)
		argIdx++
	}
	if filter.OficinaID != 0 {
		query += fmt.Sprintf(" AND oficina_id = $%d", argIdx)
		args = append(args, filter.OficinaID)
		argIdx++
	}

	query += " ORDER BY fecha_hora"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("turnos: list: %w", err)
	}
	defer rows.Close()

	var out []*Turno
	for rows.Next() {
		t, err := scanTurno(rows)
		if err != nil {
			return nil, fmt.Errorf("turnos: list scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountAssigned(ctx context.Context, oficinaID int64) (int, error) {
	return r.countSlots(ctx, oficinaID, true)
}

func (r *PostgresRepository) CountSlots(ctx context.Context, oficinaID int64) (int, error) {
	return r.countSlots(ctx, oficinaID, false)
}

func (r *PostgresRepository) countSlots(ctx context.Context, oficinaID int64, assignedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM turnos WHERE oficina_id = $1 AND fecha_hora >= NOW()`
	if assignedOnly {
		query += ` AND persona_apellido IS NOT NULL`
	}
	var n int
	if err := r.pool.QueryRow(ctx, query, oficinaID).Scan(&n); err != nil {
		return 0, fmt.Errorf("turnos: count slots: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) LastPersonaByOrganismo(ctx context.Context, organismoID int64) (*Persona, error) {
	query := `
		SELECT persona_apellido, persona_nombre, persona_dni,
			persona_email, persona_telefono, persona_organismo_id
		FROM turnos
		WHERE persona_organismo_id = $1
		ORDER BY fecha_hora DESC
		LIMIT 1
	`
	var apellido, nombre, dni *string
	var email, telefono *string
	var orgID *int64
	if err := r.pool.QueryRow(ctx, query, organismoID).Scan(&apellido, &nombre, &dni, &email, &telefono, &orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnoNotFound
		}
		return nil, fmt.Errorf("turnos: last persona by organismo: %w", err)
	}
	return &Persona{
		Apellido:    deref(apellido),
		Nombre:      deref(nombre),
		DNI:         deref(dni),
		Email:       deref(email),
		Telefono:    deref(telefono),
		OrganismoID: derefInt(orgID),
	}, nil
}

func scanTurno(row pgx.Row) (*Turno, error) {
	var t Turno
	var apellido, nombre, dni, email, telefono *string
	var orgID *int64
	if err := row.Scan(
		&t.ID,
		&t.OficinaID,
		&t.FechaHora,
		&t.Estado,
		&t.Motivo,
		&apellido,
		&nombre,
		&dni,
		&email,
		&telefono,
		&orgID,
		&t.Flags.Notebook,
		&t.Flags.Zoom,
	); err != nil {
		return nil, err
	}
	if apellido != nil {
		t.Persona = &Persona{
			Apellido:    *apellido,
			Nombre:      deref(nombre),
			DNI:         deref(dni),
			Email:       deref(email),
			Telefono:    deref(telefono),
			OrganismoID: derefInt(orgID),
		}
	}
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
