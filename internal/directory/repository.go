package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound means the requested directory entity does not exist.
var ErrNotFound = errors.New("directory: not found")

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the directory tables. They change rarely and only by
// hand, so there is no write path here.
type Repository struct {
	pool db
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithDB(pool db) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Circunscripciones(ctx context.Context) ([]Circunscripcion, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre FROM circunscripciones ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("directory: circunscripciones: %w", err)
	}
	defer rows.Close()

	var out []Circunscripcion
	for rows.Next() {
		var c Circunscripcion
		if err := rows.Scan(&c.ID, &c.Nombre); err != nil {
			return nil, fmt.Errorf("directory: scan circunscripcion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) LocalidadesByCircunscripcion(ctx context.Context, circunscripcionID int64) ([]Localidad, error) {
	query := `
		SELECT id, nombre, circunscripcion_id
		FROM localidades
		WHERE circunscripcion_id = $1
		ORDER BY nombre
	`
	rows, err := r.pool.Query(ctx, query, circunscripcionID)
	if err != nil {
		return nil, fmt.Errorf("directory: localidades: %w", err)
	}
	defer rows.Close()

	var out []Localidad
	for rows.Next() {
		var l Localidad
		if err := rows.Scan(&l.ID, &l.Nombre, &l.CircunscripcionID); err != nil {
			return nil, fmt.Errorf("directory: scan localidad: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// OficinasHabilitadasByLocalidad lists the offices the wizard offers for a
// locality. Disabled offices stay bookable for staff but never show here.
func (r *Repository) OficinasHabilitadasByLocalidad(ctx context.Context, localidadID int64) ([]Oficina, error) {
	query := `
		SELECT id, nombre, localidad_id, habilitada
		FROM oficinas
		WHERE localidad_id = $1 AND habilitada
		ORDER BY nombre
	`
	return r.queryOficinas(ctx, query, localidadID)
}

func (r *Repository) Oficinas(ctx context.Context) ([]Oficina, error) {
	return r.queryOficinas(ctx, `SELECT id, nombre, localidad_id, habilitada FROM oficinas ORDER BY nombre`)
}

func (r *Repository) queryOficinas(ctx context.Context, query string, args ...any) ([]Oficina, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: oficinas: %w", err)
	}
	defer rows.Close()

	var out []Oficina
	for rows.Next() {
		var o Oficina
		if err := rows.Scan(&o.ID, &o.Nombre, &o.LocalidadID, &o.Habilitada); err != nil {
			return nil, fmt.Errorf("directory: scan oficina: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OficinaNombre resolves an office id to its display name.
func (r *Repository) OficinaNombre(ctx context.Context, id int64) (string, error) {
	var nombre string
	err := r.pool.QueryRow(ctx, `SELECT nombre FROM oficinas WHERE id = $1`, id).Scan(&nombre)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("directory: oficina nombre: %w", err)
	}
	return nombre, nil
}

func (r *Repository) Organismos(ctx context.Context) ([]Organismo, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre, codigo FROM organismos ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("directory: organismos: %w", err)
	}
	defer rows.Close()

	var out []Organismo
	for rows.Next() {
		var o Organismo
		if err := rows.Scan(&o.ID, &o.Nombre, &o.Codigo); err != nil {
			return nil, fmt.Errorf("directory: scan organismo: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrganismoCodigo resolves an organism id to the code the civil-hearing
// flow stores in place of a DNI.
func (r *Repository) OrganismoCodigo(ctx context.Context, id int64) (string, error) {
	var codigo string
	err := r.pool.QueryRow(ctx, `SELECT codigo FROM organismos WHERE id = $1`, id).Scan(&codigo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("directory: organismo codigo: %w", err)
	}
	return codigo, nil
}
