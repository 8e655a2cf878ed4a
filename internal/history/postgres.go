package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/tracing"
)

// PostgresStore implements Store on the interactions and feedback_signals
// tables.
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

func (s *PostgresStore) GetInteractions(ctx context.Context, userID string) (_ []InteractionRecord, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, item_id, status, rating, note, created_at, updated_at
		FROM interactions
		WHERE user_id = $1
		ORDER BY item_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []InteractionRecord
	for rows.Next() {
		var (
			rec    InteractionRecord
			status string
			rating sql.NullInt32
		)
		if err := rows.Scan(&rec.UserID, &rec.ItemID, &status, &rating, &rec.Note, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		rec.Status = Status(status)
		if rating.Valid {
			r := int(rating.Int32)
			rec.Rating = &r
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertInteraction(ctx context.Context, rec *InteractionRecord) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var rating sql.NullInt32
	if rec.Rating != nil {
		rating = sql.NullInt32{Int32: int32(*rec.Rating), Valid: true}
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (user_id, item_id, status, rating, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, item_id) DO UPDATE SET
			status = EXCLUDED.status,
			rating = EXCLUDED.rating,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.ItemID, string(rec.Status), rating, rec.Note, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendFeedback(ctx context.Context, sig *FeedbackSignal) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feedback_signals", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_signals (id, user_id, item_id, type, category, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sig.ID, sig.UserID, sig.ItemID, string(sig.Type), string(sig.Category), pq.Array(sig.Tags), sig.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to append feedback",
			slog.String("user_id", sig.UserID),
			slog.String("item_id", sig.ItemID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeedbackSince(ctx context.Context, userID string, since time.Time) (_ []FeedbackSignal, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feedback_signals", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item_id, type, category, tags, created_at
		FROM feedback_signals
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at, id`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var out []FeedbackSignal
	for rows.Next() {
		var (
			sig      FeedbackSignal
			typ, cat string
		)
		if err := rows.Scan(&sig.ID, &sig.UserID, &sig.ItemID, &typ, &cat, pq.Array(&sig.Tags), &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		sig.Type = FeedbackType(typ)
		sig.Category = item.Category(cat)
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) HiddenItemIDs(ctx context.Context, userID string) (_ []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feedback_signals", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT item_id FROM feedback_signals
		WHERE user_id = $1 AND type = 'HIDE'
		ORDER BY item_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hidden items: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hidden item: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hidden items: %w", err)
	}
	return out, nil
}

// PostgresViewStore implements ViewStore on the feed_views table. Increments
// are single upserts so concurrent renders never lose a count.
type PostgresViewStore struct {
	db *sql.DB
}

// NewPostgresViewStore creates a new PostgresViewStore.
func NewPostgresViewStore(db *sql.DB) *PostgresViewStore {
	return &PostgresViewStore{db: db}
}

func (s *PostgresViewStore) Get(ctx context.Context, userID string, itemIDs []string) (_ map[string]ViewRecord, err error) {
	out := make(map[string]ViewRecord, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "feed_views", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, seen_count, last_shown_at, interacted
		FROM feed_views
		WHERE user_id = $1 AND item_id = ANY($2)`, userID, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query feed views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v := ViewRecord{UserID: userID}
		var last sql.NullTime
		if err := rows.Scan(&v.ItemID, &v.SeenCount, &last, &v.Interacted); err != nil {
			return nil, fmt.Errorf("failed to scan feed view: %w", err)
		}
		if last.Valid {
			t := last.Time
			v.LastShownAt = &t
		}
		out[v.ItemID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed views: %w", err)
	}
	return out, nil
}

func (s *PostgresViewStore) Increment(ctx context.Context, userID, itemID string, at time.Time) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feed_views", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_views (user_id, item_id, seen_count, last_shown_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id, item_id) DO UPDATE SET
			seen_count = feed_views.seen_count + 1,
			last_shown_at = GREATEST(feed_views.last_shown_at, EXCLUDED.last_shown_at)`,
		userID, itemID, at)
	if err != nil {
		return fmt.Errorf("failed to increment feed view: %w", err)
	}
	return nil
}

func (s *PostgresViewStore) MarkInteracted(ctx context.Context, userID, itemID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feed_views", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_views (user_id, item_id, interacted)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id, item_id) DO UPDATE SET interacted = TRUE`,
		userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark feed view interacted: %w", err)
	}
	return nil
}
