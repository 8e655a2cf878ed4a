package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/tracing"
)

const candidateColumns = `
	id, city_id, title, category, tags,
	venue_name, venue_address, neighborhood,
	lat, lng, starts_at, ends_at,
	price_free, price_max, rating_value, rating_count,
	vibe_tags, companion_tags, created_at`

// PostgresRepository implements Repository on the candidates table.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// FetchActive returns the city's candidates ordered by ID.
func (r *PostgresRepository) FetchActive(ctx context.Context, cityID string, window *Window) (_ []Candidate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE city_id = $1`
	args := []any{cityID}
	if window != nil {
		query += ` AND (starts_at IS NULL OR (starts_at <= $3 AND COALESCE(ends_at, starts_at) >= $2))`
		args = append(args, window.From, window.To)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}
	return out, nil
}

// GetByID returns a single candidate or ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Candidate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	row := r.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// Upsert inserts or replaces a candidate.
func (r *PostgresRepository) Upsert(ctx context.Context, c *Candidate) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "candidates", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var lat, lng sql.NullFloat64
	if c.Location != nil {
		lat = sql.NullFloat64{Float64: c.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Location.Lng, Valid: true}
	}
	var priceMax sql.NullFloat64
	if c.Price.Max != nil {
		priceMax = sql.NullFloat64{Float64: *c.Price.Max, Valid: true}
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			city_id = EXCLUDED.city_id,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			venue_name = EXCLUDED.venue_name,
			venue_address = EXCLUDED.venue_address,
			neighborhood = EXCLUDED.neighborhood,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			price_free = EXCLUDED.price_free,
			price_max = EXCLUDED.price_max,
			rating_value = EXCLUDED.rating_value,
			rating_count = EXCLUDED.rating_count,
			vibe_tags = EXCLUDED.vibe_tags,
			companion_tags = EXCLUDED.companion_tags`,
		c.ID, c.CityID, c.Title, string(c.Category), pq.Array(c.Tags),
		c.Venue.Name, c.Venue.Address, c.Venue.Neighborhood,
		lat, lng, c.StartsAt, c.EndsAt,
		c.Price.Free, priceMax, c.Rating.Value, c.Rating.Count,
		pq.Array(c.VibeTags), pq.Array(c.CompanionTags), createdAt,
	)
	if err != nil {
		r.logger.Error("failed to upsert candidate",
			slog.String("item_id", c.ID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(s rowScanner) (*Candidate, error) {
	var (
		c                  Candidate
		category           string
		lat, lng, priceMax sql.NullFloat64
		startsAt, endsAt   sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.CityID, &c.Title, &category, pq.Array(&c.Tags),
		&c.Venue.Name, &c.Venue.Address, &c.Venue.Neighborhood,
		&lat, &lng, &startsAt, &endsAt,
		&c.Price.Free, &priceMax, &c.Rating.Value, &c.Rating.Count,
		pq.Array(&c.VibeTags), pq.Array(&c.CompanionTags), &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan candidate: %w", err)
	}

	c.Category = Category(category)
	if lat.Valid && lng.Valid {
		c.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if startsAt.Valid {
		t := startsAt.Time
		c.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		c.EndsAt = &t
	}
	if priceMax.Valid {
		m := priceMax.Float64
		c.Price.Max = &m
	}
	return &c, nil
}
