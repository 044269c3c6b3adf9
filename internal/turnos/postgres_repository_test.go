package turnos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, newPostgresRepositoryWithDB(mock)
}

func turnoRows(id int64, when time.Time, booked bool) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "oficina_id", "fecha_hora", "estado", "motivo",
		"persona_apellido", "persona_nombre", "persona_dni", "persona_email",
		"persona_telefono", "persona_organismo_id", "notebook", "zoom",
	})
	if booked {
		apellido, nombre, dni := "GARCIA", "Ana", "28123456"
		return rows.AddRow(id, int64(1), when, EstadoSinAtender, "Consulta",
			&apellido, &nombre, &dni, (*string)(nil), (*string)(nil), (*int64)(nil), false, false)
	}
	return rows.AddRow(id, int64(1), when, EstadoSinAtender, "",
		(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*int64)(nil), false, false)
}

func TestPostgresReserveWinner(t *testing.T) {
	mock, repo := newMockRepo(t)
	when := time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE turnos").
		WithArgs(int64(5), "GARCIA", "Ana", "28123456", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "Consulta", false, false, EstadoSinAtender).
		WillReturnRows(turnoRows(5, when, true))

	got, err := repo.Reserve(context.Background(), 5, testPersona(), "Consulta", Flags{})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got.Libre() || got.Persona.Apellido != "GARCIA" {
		t.Fatalf("unexpected turno: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveLoserGetsSlotTaken(t *testing.T) {
	mock, repo := newMockRepo(t)

	// Conditional update touches no row, then the existence probe finds
	// the slot, so the slot was grabbed by someone else.
	mock.ExpectQuery("UPDATE turnos").
		WithArgs(int64(5), "GARCIA", "Ana", "28123456", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "Consulta", false, false, EstadoSinAtender).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM turnos").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := repo.Reserve(context.Background(), 5, testPersona(), "Consulta", Flags{})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveMissingSlot(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("UPDATE turnos").
		WithArgs(int64(5), "GARCIA", "Ana", "28123456", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "Consulta", false, false, EstadoSinAtender).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM turnos").
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Reserve(context.Background(), 5, testPersona(), "Consulta", Flags{})
	if !errors.Is(err, ErrTurnoNotFound) {
		t.Fatalf("expected ErrTurnoNotFound, got %v", err)
	}
}

func TestPostgresTransitionEstado(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec("UPDATE turnos").
		WithArgs(int64(5), EstadoSinAtender, EstadoAtendido).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.TransitionEstado(context.Background(), 5, EstadoSinAtender, EstadoAtendido); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTransitionEstadoWrongState(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec("UPDATE turnos").
		WithArgs(int64(5), EstadoSinAtender, EstadoAusente).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM turnos").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	err := repo.TransitionEstado(context.Background(), 5, EstadoSinAtender, EstadoAusente)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPostgresRejectTransaction(t *testing.T) {
	mock, repo := newMockRepo(t)
	when := time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC)
	rechazo := time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.|\\s)*FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(turnoRows(5, when, true))
	mock.ExpectQuery("INSERT INTO turnos_rechazados").
		WithArgs(int64(1), when, "Consulta", "Documentación incompleta",
			"GARCIA", "Ana", "28123456", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false, false, true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "fecha_hora_rechazo"}).AddRow(int64(31), rechazo))
	mock.ExpectExec("UPDATE turnos").
		WithArgs(int64(5), EstadoSinAtender).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rec, err := repo.Reject(context.Background(), 5, "Documentación incompleta", true)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rec.ID != 31 || rec.MotivoRechazo != "Documentación incompleta" || !rec.FechaHoraRechazo.Equal(rechazo) {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRejectFreeSlotRollsBack(t *testing.T) {
	mock, repo := newMockRepo(t)
	when := time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.|\\s)*FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(turnoRows(5, when, false))
	mock.ExpectRollback()

	_, err := repo.Reject(context.Background(), 5, "motivo", false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresIncrementDailyCountUpsert(t *testing.T) {
	mock, repo := newMockRepo(t)
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.Local)

	mock.ExpectExec("INSERT INTO turnos_diarios").
		WithArgs(int64(1), day).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.IncrementDailyCount(context.Background(), 1, day.Add(9*time.Hour)); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDailyCountMissingRowIsZero(t *testing.T) {
	mock, repo := newMockRepo(t)
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.Local)

	mock.ExpectQuery("SELECT cantidad FROM turnos_diarios").
		WithArgs(int64(1), day).
		WillReturnError(pgx.ErrNoRows)

	n, err := repo.DailyCount(context.Background(), 1, day)
	if err != nil {
		t.Fatalf("daily count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestPostgresFullyBookedDates(t *testing.T) {
	mock, repo := newMockRepo(t)
	from := time.Date(2026, 9, 14, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 3)

	mock.ExpectQuery("generate_series").
		WithArgs(int64(1), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"d"}).
			AddRow(from).
			AddRow(from.AddDate(0, 0, 2)))

	full, err := repo.FullyBookedDates(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("fully booked dates failed: %v", err)
	}
	if len(full) != 2 || !full[0].Equal(from) {
		t.Fatalf("unexpected dates: %v", full)
	}
}

func TestPostgresListBuildsFilter(t *testing.T) {
	mock, repo := newMockRepo(t)
	when := time.Date(2026, 9, 20, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT(.|\\s)*FROM turnos").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), int(EstadoSinAtender), int64(3)).
		WillReturnRows(turnoRows(5, when, true))

	got, err := repo.List(context.Background(), ListFilter{
		Momento:   MomentoFuturo,
		Estado:    int(EstadoSinAtender),
		OficinaID: 3,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
