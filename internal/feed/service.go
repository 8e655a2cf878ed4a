package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/profile"
	"github.com/onnwee/citypulse/internal/ranking"
	"github.com/onnwee/citypulse/internal/tracing"
	"github.com/onnwee/citypulse/internal/validate"
)

// DefaultCandidateHorizon is how far ahead events are fetched.
const DefaultCandidateHorizon = 14 * 24 * time.Hour

// Dependencies are the repositories a Service reads and writes.
type Dependencies struct {
	Candidates item.Repository
	Profiles   profile.Store
	History    history.Store
	Views      history.ViewStore
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Ranking  *ranking.Config
	Breakers BreakerConfig

	// CandidateHorizon bounds the event window fetched per request.
	CandidateHorizon time.Duration

	// RecordImpressions increments view records for every item served.
	RecordImpressions bool

	// Location is the time zone day and time-of-day matching use.
	Location *time.Location

	// Now is the clock. Tests inject a fixed one.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *Metrics
}

// Service orchestrates feed ranking and records personalization signals.
type Service struct {
	candidates item.Repository
	profiles   profile.Store
	history    history.Store
	views      history.ViewStore

	ranker      *ranking.Ranker
	breakers    breakers
	horizon     time.Duration
	impressions bool
	location    *time.Location
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics
	hidden      *hiddenSets
}

// NewService creates a Service.
func NewService(deps Dependencies, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	horizon := opts.CandidateHorizon
	if horizon <= 0 {
		horizon = DefaultCandidateHorizon
	}
	bc := opts.Breakers
	if bc.FailureThreshold == 0 {
		bc = DefaultBreakerConfig()
	}

	return &Service{
		candidates:  deps.Candidates,
		profiles:    deps.Profiles,
		history:     deps.History,
		views:       deps.Views,
		ranker:      ranking.NewRanker(opts.Ranking),
		breakers:    newBreakers(bc, logger),
		horizon:     horizon,
		impressions: opts.RecordImpressions,
		location:    opts.Location,
		now:         now,
		logger:      logger,
		metrics:     opts.Metrics,
		hidden:      newHiddenSets(0),
	}
}

// Item is one ranked entry of a page.
type Item struct {
	ItemID         string            `json:"item_id"`
	Item           item.Candidate    `json:"item"`
	// Score is rounded to the nearest integer; ordering used the raw value.
	Score          float64           `json:"score"`
	Reason         ranking.Reason    `json:"reason"`
	Exploration    bool              `json:"is_exploration_pick"`
	DistanceMeters *float64          `json:"distance_meters,omitempty"`
	Breakdown      ranking.Breakdown `json:"breakdown"`
}

// NearbyItem is one entry of the proximity result set.
type NearbyItem struct {
	ItemID         string         `json:"item_id"`
	Item           item.Candidate `json:"item"`
	DistanceMeters float64        `json:"distance_meters"`
}

// Page is the RankFeed response.
type Page struct {
	Items      []Item       `json:"items"`
	Nearby     []NearbyItem `json:"nearby,omitempty"`
	NextCursor string       `json:"next_cursor,omitempty"`

	// FilteredByConstraints is set when candidates existed but filters
	// removed all of them.
	FilteredByConstraints bool `json:"filtered_by_constraints"`

	// Degraded is set when a dependency failed and the page fell back to
	// popularity order.
	Degraded             bool     `json:"degraded"`
	DegradedDependencies []string `json:"degraded_dependencies,omitempty"`
}

// snapshot is the result of the parallel repository fan-out.
type snapshot struct {
	candidates   []item.Candidate
	prefs        *profile.Preferences
	constraints  *profile.Constraints
	interactions []history.InteractionRecord
	feedback     []history.FeedbackSignal
	hidden       []string
	views        map[string]history.ViewRecord

	mu     sync.Mutex
	failed map[string]error
}

func (s *snapshot) fail(dep string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.failed[dep]; !ok {
		s.failed[dep] = err
	}
}

// failedDependencies returns the failed dependency names in sorted order.
func (s *snapshot) failedDependencies() []string {
	deps := make([]string, 0, len(s.failed))
	for dep := range s.failed {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// RankFeed returns one page of the user's feed. Only ErrInvalidInput is
// returned; dependency failures degrade the page instead.
func (s *Service) RankFeed(ctx context.Context, req RankRequest) (page *Page, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, tracing.SpanFeedRank)
	defer func() { endSpan(err) }()

	size, cur, companion, err := s.validateRank(&req)
	if err != nil {
		s.metrics.observeRank(OutcomeInvalid, time.Since(start).Seconds())
		return nil, err
	}
	tracing.SetAttributes(ctx,
		attribute.String("feed.city_id", req.CityID),
		attribute.Int("feed.page_size", size),
		attribute.Int("feed.page", cur.Page),
	)

	now := s.now()
	snap := s.fetch(ctx, req.UserID, req.CityID, now)
	for _, dep := range snap.failedDependencies() {
		s.metrics.incDegraded(dep)
		tracing.AddEvent(ctx, "feed.degraded", attribute.String("dependency", dep))
		s.logger.WarnContext(ctx, "feed dependency unavailable, degrading",
			slog.String("dependency", dep),
			slog.String("user_id", req.UserID),
			slog.String("error", snap.failed[dep].Error()),
		)
	}

	page = &Page{Items: []Item{}, DegradedDependencies: snap.failedDependencies()}
	page.Degraded = len(page.DegradedDependencies) > 0
	if _, ok := snap.failed[DepCandidates]; ok {
		s.metrics.observeRank(OutcomeDegraded, time.Since(start).Seconds())
		return page, nil
	}

	res := s.ranker.Rank(&ranking.Input{
		Now:      now,
		CityID:   req.CityID,
		PageSize: size,
		Page:     cur.Page,

		Candidates: snap.candidates,
		User: ranking.UserContext{
			Preferences: snap.prefs,
			Constraints: snap.constraints,
			Companion:   companion,
			Location:    s.location,
		},
		Feedback:     snap.feedback,
		Hidden:       snap.hidden,
		Interactions: snap.interactions,
		Views:        snap.views,

		GeoCenter:    req.Center,
		RadiusMeters: req.RadiusMeters,

		Unpersonalized: page.Degraded,
	})

	for _, skip := range res.Skipped {
		s.logger.WarnContext(ctx, "skipping candidate",
			slog.String("item_id", skip.ItemID),
			slog.String("reason", skip.Err.Error()),
		)
	}
	for reason, n := range res.Filtered {
		s.metrics.addSkipped(string(reason), n)
	}
	s.metrics.addExplorationPicks(res.ExplorationPicks)

	page.FilteredByConstraints = res.FilteredByConstraints
	for i := range res.Items {
		r := &res.Items[i]
		page.Items = append(page.Items, Item{
			ItemID:         r.Item.ID,
			Item:           r.Item,
			Score:          math.Round(r.Score),
			Reason:         r.Reason,
			Exploration:    r.Exploration,
			DistanceMeters: r.DistanceMeters,
			Breakdown:      r.Breakdown,
		})
	}
	for _, n := range res.Nearby {
		page.Nearby = append(page.Nearby, NearbyItem{ItemID: n.Item.ID, Item: n.Item, DistanceMeters: n.DistanceMeters})
	}
	if res.HasMore {
		page.NextCursor = encodeCursor(cursor{Page: cur.Page + 1, PageSize: size})
	}

	if s.impressions && !page.Degraded {
		s.recordImpressions(ctx, req.UserID, page.Items, now)
	}

	outcome := OutcomeOK
	switch {
	case page.Degraded:
		outcome = OutcomeDegraded
	case len(page.Items) == 0:
		outcome = OutcomeEmpty
	}
	s.metrics.observeRank(outcome, time.Since(start).Seconds())

	s.logger.DebugContext(ctx, "ranked feed",
		slog.String("user_id", req.UserID),
		slog.String("city_id", req.CityID),
		slog.Int("candidates", len(snap.candidates)),
		slog.Int("eligible", res.Eligible),
		slog.Int("returned", len(page.Items)),
		slog.Int("exploration_picks", res.ExplorationPicks),
		slog.Bool("degraded", page.Degraded),
	)
	return page, nil
}

func (s *Service) validateRank(req *RankRequest) (size int, cur cursor, companion profile.Companion, err error) {
	if err = validateStruct(req); err != nil {
		return 0, cursor{}, "", err
	}
	if limit := s.ranker.Config().Page.MaxSize; req.PageSize > limit {
		return 0, cursor{}, "", fmt.Errorf("%w: page_size must be at most %d", ErrInvalidInput, limit)
	}
	if req.Center != nil {
		if err = req.Center.Validate(); err != nil {
			return 0, cursor{}, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	} else if req.RadiusMeters > 0 {
		return 0, cursor{}, "", fmt.Errorf("%w: radius_meters requires center", ErrInvalidInput)
	}
	if companion, err = profile.ParseCompanion(req.Companion); err != nil {
		return 0, cursor{}, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	size = s.ranker.PageSize(req.PageSize)
	if cur, err = decodeCursor(req.Cursor, size); err != nil {
		return 0, cursor{}, "", err
	}
	return size, cur, companion, nil
}

// fetch issues every repository read in parallel and waits for all of them.
// View records depend on the candidate IDs, so they are read after the
// candidates on the same goroutine.
func (s *Service) fetch(ctx context.Context, userID, cityID string, now time.Time) *snapshot {
	ctx, endSpan := tracing.StartSpan(ctx, tracing.SpanFeedFetch)
	defer endSpan(nil)

	snap := &snapshot{failed: make(map[string]error)}
	from := now.Truncate(time.Hour)
	window := &item.Window{From: from, To: from.Add(s.horizon)}
	since := now.AddDate(0, 0, -s.ranker.Config().Feedback.WindowDays)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() {
		candidates, err := guarded(s.breakers, DepCandidates, func() ([]item.Candidate, error) {
			return s.candidates.FetchActive(ctx, cityID, window)
		})
		if err != nil {
			snap.fail(DepCandidates, err)
			return
		}
		snap.candidates = candidates
		if len(candidates) == 0 {
			return
		}

		ids := make([]string, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ID
		}
		views, err := guarded(s.breakers, DepViews, func() (map[string]history.ViewRecord, error) {
			return s.views.Get(ctx, userID, ids)
		})
		if err != nil {
			snap.fail(DepViews, err)
			return
		}
		snap.views = views
	})
	run(func() {
		prefs, err := guarded(s.breakers, DepPreferences, func() (*profile.Preferences, error) {
			return s.profiles.GetPreferences(ctx, userID)
		})
		if err != nil {
			snap.fail(DepPreferences, err)
			return
		}
		snap.prefs = prefs
	})
	run(func() {
		cons, err := guarded(s.breakers, DepConstraints, func() (*profile.Constraints, error) {
			return s.profiles.GetConstraints(ctx, userID)
		})
		if err != nil {
			snap.fail(DepConstraints, err)
			return
		}
		snap.constraints = cons
	})
	run(func() {
		recs, err := guarded(s.breakers, DepHistory, func() ([]history.InteractionRecord, error) {
			return s.history.GetInteractions(ctx, userID)
		})
		if err != nil {
			snap.fail(DepHistory, err)
			return
		}
		snap.interactions = recs
	})
	run(func() {
		signals, err := guarded(s.breakers, DepFeedback, func() ([]history.FeedbackSignal, error) {
			return s.history.GetFeedbackSince(ctx, userID, since)
		})
		if err != nil {
			snap.fail(DepFeedback, err)
			return
		}
		snap.feedback = signals
	})
	run(func() {
		hidden, err := guarded(s.breakers, DepFeedback, func() ([]string, error) {
			return s.history.HiddenItemIDs(ctx, userID)
		})
		if err != nil {
			snap.fail(DepFeedback, err)
			// Fall back to the last set read so hidden items stay hidden.
			snap.hidden, _ = s.hidden.load(userID)
			return
		}
		s.hidden.store(userID, hidden)
		snap.hidden = hidden
	})

	wg.Wait()
	return snap
}

func (s *Service) recordImpressions(ctx context.Context, userID string, items []Item, now time.Time) {
	for _, it := range items {
		if err := s.exec(DepViews, func() error {
			return s.views.Increment(ctx, userID, it.ItemID, now)
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to record impression",
				slog.String("user_id", userID),
				slog.String("item_id", it.ItemID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// RecordFeedback appends a MORE, LESS or HIDE signal. MORE and LESS also
// mark the item's view record as interacted.
func (s *Service) RecordFeedback(ctx context.Context, req FeedbackRequest) (sig *history.FeedbackSignal, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, tracing.SpanFeedRecordFeedback)
	defer func() { endSpan(err) }()

	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	ft, err := history.ParseFeedbackType(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c, err := s.lookupItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	sig, err = history.NewFeedbackSignal(req.UserID, c, ft, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.exec(DepFeedback, func() error {
		return s.history.AppendFeedback(ctx, sig)
	}); err != nil {
		return nil, fmt.Errorf("%w: failed to append feedback: %w", ErrRepositoryUnavailable, err)
	}
	s.metrics.incFeedback(string(ft))

	if ft == history.FeedbackHide {
		s.hidden.add(req.UserID, req.ItemID)
	} else {
		s.markInteracted(ctx, req.UserID, req.ItemID)
	}
	s.logger.InfoContext(ctx, "recorded feedback",
		slog.String("user_id", req.UserID),
		slog.String("item_id", req.ItemID),
		slog.String("type", string(ft)),
	)
	return sig, nil
}

// RecordView increments the item's seen count. Increments commute, so
// concurrent views from one user are never lost.
func (s *Service) RecordView(ctx context.Context, req ViewRequest) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, tracing.SpanFeedRecordView)
	defer func() { endSpan(err) }()

	if err := validateStruct(&req); err != nil {
		return err
	}
	if err := s.exec(DepViews, func() error {
		return s.views.Increment(ctx, req.UserID, req.ItemID, s.now())
	}); err != nil {
		return fmt.Errorf("%w: failed to record view: %w", ErrRepositoryUnavailable, err)
	}
	if req.Interacted {
		if err := s.exec(DepViews, func() error {
			return s.views.MarkInteracted(ctx, req.UserID, req.ItemID)
		}); err != nil {
			return fmt.Errorf("%w: failed to mark interaction: %w", ErrRepositoryUnavailable, err)
		}
	}
	return nil
}

// RecordInteraction upserts the user's status, rating and note on an item.
// Engaged statuses and ratings mark the view record as interacted.
func (s *Service) RecordInteraction(ctx context.Context, req InteractionRequest) (rec *history.InteractionRecord, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, tracing.SpanFeedRecordInteraction)
	defer func() { endSpan(err) }()

	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	status, err := history.ParseStatus(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	note, err := validate.Note(req.Note)
	if err != nil {
		return nil, fmt.Errorf("%w: note: %v", ErrInvalidInput, err)
	}
	if _, err := s.lookupItem(ctx, req.ItemID); err != nil {
		return nil, err
	}

	now := s.now()
	rec = &history.InteractionRecord{
		UserID:    req.UserID,
		ItemID:    req.ItemID,
		Status:    status,
		Rating:    req.Rating,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.exec(DepHistory, func() error {
		return s.history.UpsertInteraction(ctx, rec)
	}); err != nil {
		return nil, fmt.Errorf("%w: failed to save interaction: %w", ErrRepositoryUnavailable, err)
	}

	if status.Engaged() || rec.Rating != nil {
		s.markInteracted(ctx, req.UserID, req.ItemID)
	}
	return rec, nil
}

// BreakerStates reports each dependency's circuit breaker state.
func (s *Service) BreakerStates() map[string]string {
	out := make(map[string]string, len(s.breakers))
	for name := range s.breakers {
		out[name] = s.breakers.State(name)
	}
	return out
}

// lookupItem wraps item.ErrNotFound for missing items and
// ErrRepositoryUnavailable for anything else.
func (s *Service) lookupItem(ctx context.Context, id string) (*item.Candidate, error) {
	c, err := guarded(s.breakers, DepCandidates, func() (*item.Candidate, error) {
		return s.candidates.GetByID(ctx, id)
	})
	switch {
	case errors.Is(err, item.ErrNotFound):
		return nil, fmt.Errorf("failed to find item %s: %w", id, err)
	case err != nil:
		return nil, fmt.Errorf("%w: failed to load item %s: %w", ErrRepositoryUnavailable, id, err)
	}
	return c, nil
}

// markInteracted logs failures instead of returning them.
func (s *Service) markInteracted(ctx context.Context, userID, itemID string) {
	if err := s.exec(DepViews, func() error {
		return s.views.MarkInteracted(ctx, userID, itemID)
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to mark view as interacted",
			slog.String("user_id", userID),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) exec(dep string, fn func() error) error {
	_, err := guarded(s.breakers, dep, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
