package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/tracing"
)

// PostgresStore implements Store on the user_preferences, user_affinities and
// user_constraints tables.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (_ *Preferences, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_preferences", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	p := &Preferences{UserID: userID}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, sentiment, intensity
		FROM user_preferences
		WHERE user_id = $1
		ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category, sentiment string
		var intensity int
		if err := rows.Scan(&category, &sentiment, &intensity); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		p.Categories = append(p.Categories, Preference{
			Category:  item.Category(category),
			Sentiment: Sentiment(sentiment),
			Intensity: intensity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}

	var companion string
	err = s.db.QueryRowContext(ctx, `
		SELECT vibe_affinity, companion FROM user_affinities WHERE user_id = $1`, userID,
	).Scan(pq.Array(&p.VibeAffinity), &companion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return nil, fmt.Errorf("failed to query affinities: %w", err)
	}
	p.Companion = Companion(companion)
	return p, nil
}

// SavePreferences replaces the user's preference set in one transaction.
func (s *PostgresStore) SavePreferences(ctx context.Context, p *Preferences) (err error) {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "user_preferences", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Warn("failed to rollback transaction", slog.String("error", rbErr.Error()))
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, p.UserID); err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}
	for _, pref := range p.Categories {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_preferences (user_id, category, sentiment, intensity, updated_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			p.UserID, string(pref.Category), string(pref.Sentiment), pref.Intensity,
		); err != nil {
			return fmt.Errorf("failed to insert preference: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_affinities (user_id, vibe_affinity, companion, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			vibe_affinity = EXCLUDED.vibe_affinity,
			companion = EXCLUDED.companion,
			updated_at = NOW()`,
		p.UserID, pq.Array(p.VibeAffinity), string(p.Companion),
	); err != nil {
		return fmt.Errorf("failed to upsert affinities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}

const constraintColumns = `
	user_id, days, times, budget, home_neighborhood, neighborhoods,
	free_events_only, discovery_mode, travel_radius_m, home_lat, home_lng,
	created_at, updated_at`

// GetConstraints inserts the default row if missing, then reads it back.
func (s *PostgresStore) GetConstraints(ctx context.Context, userID string) (_ *Constraints, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_constraints", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_constraints (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("failed to create constraints: %w", err)
	}

	var (
		c                Constraints
		days             pq.Int64Array
		times            pq.StringArray
		budget           string
		radius, lat, lng sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, `SELECT `+constraintColumns+` FROM user_constraints WHERE user_id = $1`, userID).Scan(
		&c.UserID, &days, &times, &budget, &c.HomeNeighborhood, pq.Array(&c.Neighborhoods),
		&c.FreeEventsOnly, &c.DiscoveryMode, &radius, &lat, &lng,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}

	c.Budget = Budget(budget)
	for _, d := range days {
		c.Days = append(c.Days, time.Weekday(d))
	}
	for _, t := range times {
		c.Times = append(c.Times, TimeOfDay(t))
	}
	if radius.Valid {
		r := radius.Float64
		c.TravelRadiusMeters = &r
	}
	if lat.Valid && lng.Valid {
		c.HomeLocation = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &c, nil
}

func (s *PostgresStore) SaveConstraints(ctx context.Context, c *Constraints) (err error) {
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "user_constraints", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	days := make(pq.Int64Array, len(c.Days))
	for i, d := range c.Days {
		days[i] = int64(d)
	}
	times := make(pq.StringArray, len(c.Times))
	for i, t := range c.Times {
		times[i] = string(t)
	}
	budget := c.Budget
	if budget == "" {
		budget = BudgetAny
	}
	var radius, lat, lng sql.NullFloat64
	if c.TravelRadiusMeters != nil {
		radius = sql.NullFloat64{Float64: *c.TravelRadiusMeters, Valid: true}
	}
	if c.HomeLocation != nil {
		lat = sql.NullFloat64{Float64: c.HomeLocation.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.HomeLocation.Lng, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_constraints (
			user_id, days, times, budget, home_neighborhood, neighborhoods,
			free_events_only, discovery_mode, travel_radius_m, home_lat, home_lng, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			days = EXCLUDED.days,
			times = EXCLUDED.times,
			budget = EXCLUDED.budget,
			home_neighborhood = EXCLUDED.home_neighborhood,
			neighborhoods = EXCLUDED.neighborhoods,
			free_events_only = EXCLUDED.free_events_only,
			discovery_mode = EXCLUDED.discovery_mode,
			travel_radius_m = EXCLUDED.travel_radius_m,
			home_lat = EXCLUDED.home_lat,
			home_lng = EXCLUDED.home_lng,
			updated_at = NOW()`,
		c.UserID, days, times, string(budget), c.HomeNeighborhood, pq.Array(c.Neighborhoods),
		c.FreeEventsOnly, c.DiscoveryMode, radius, lat, lng,
	)
	if err != nil {
		s.logger.Error("failed to save constraints",
			slog.String("user_id", c.UserID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save constraints: %w", err)
	}
	return nil
}
