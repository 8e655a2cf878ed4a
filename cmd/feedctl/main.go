// Package main is feedctl, which ranks a feed offline from a YAML fixture.
// It runs the same service the API uses against in-memory stores, so a
// calibration file can be tried out before it ships.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/onnwee/citypulse/internal/feed"
	"github.com/onnwee/citypulse/internal/fixture"
	"github.com/onnwee/citypulse/internal/geo"
	"github.com/onnwee/citypulse/internal/history"
	"github.com/onnwee/citypulse/internal/item"
	"github.com/onnwee/citypulse/internal/middleware"
	"github.com/onnwee/citypulse/internal/profile"
	"github.com/onnwee/citypulse/internal/ranking"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "feedctl:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	fixture     string
	user        string
	city        string
	now         string
	pageSize    int
	pages       int
	calibration string
	companion   string
	lat, lng    float64
	radius      float64
	asJSON      bool
	verbose     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("feedctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.fixture, "fixture", "", "path to a YAML fixture (required)")
	fs.StringVar(&o.user, "user", "", "user to rank for (required)")
	fs.StringVar(&o.city, "city", "", "city to rank (defaults to the first item's city)")
	fs.StringVar(&o.now, "now", "", "clock override, RFC 3339 (defaults to the fixture's now, then the wall clock)")
	fs.IntVar(&o.pageSize, "page-size", 0, "items per page (0 uses the calibrated default)")
	fs.IntVar(&o.pages, "pages", 1, "number of pages to walk with the returned cursor")
	fs.StringVar(&o.calibration, "calibration", "", "ranking calibration JSON file")
	fs.StringVar(&o.companion, "companion", "", "companion override: solo, date, friends or family")
	fs.Float64Var(&o.lat, "lat", 0, "latitude for nearby results")
	fs.Float64Var(&o.lng, "lng", 0, "longitude for nearby results")
	fs.Float64Var(&o.radius, "radius", 0, "nearby radius in meters (requires -lat and -lng)")
	fs.BoolVar(&o.asJSON, "json", false, "print pages as JSON")
	fs.BoolVar(&o.verbose, "v", false, "log service activity to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "CityPulse Feed Ranker")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Usage: feedctl -fixture city.yaml -user ID [options]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if o.fixture == "" || o.user == "" {
		fs.Usage()
		return nil, errUsage
	}
	if o.pages < 1 {
		o.pages = 1
	}
	return &o, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	f, err := fixture.Load(o.fixture)
	if err != nil {
		return err
	}
	loc, err := f.Location()
	if err != nil {
		return err
	}
	now, err := resolveNow(o.now, f)
	if err != nil {
		return err
	}
	if o.city == "" {
		if len(f.Items) == 0 {
			return errors.New("fixture has no items and no -city was given")
		}
		o.city = f.Items[0].City
	}

	level := slog.LevelError
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()
	stores := fixture.Stores{
		Items:    item.NewInMemoryRepository(),
		Profiles: profile.NewInMemoryStore(),
		History:  history.NewInMemoryStore(),
		Views:    history.NewInMemoryViewStore(),
	}
	if err := f.Seed(ctx, stores, now); err != nil {
		return err
	}

	rankingCfg, err := ranking.LoadCalibration(o.calibration)
	if err != nil {
		return err
	}

	service := feed.NewService(feed.Dependencies{
		Candidates: stores.Items,
		Profiles:   stores.Profiles,
		History:    stores.History,
		Views:      stores.Views,
	}, feed.Options{
		Ranking:  rankingCfg,
		Location: loc,
		Now:      func() time.Time { return now },
		Logger:   logger,
	})

	req := feed.RankRequest{
		UserID:    o.user,
		CityID:    o.city,
		PageSize:  o.pageSize,
		Companion: o.companion,
	}
	if o.radius > 0 {
		req.Center = &geo.Point{Lat: o.lat, Lng: o.lng}
		req.RadiusMeters = o.radius
	}

	ctx = middleware.SetUserID(ctx, o.user)

	for i := 0; i < o.pages; i++ {
		page, err := service.RankFeed(ctx, req)
		if err != nil {
			return err
		}
		if o.asJSON {
			if err := writeJSON(stdout, page); err != nil {
				return err
			}
		} else {
			printPage(stdout, i+1, page, loc)
		}
		if page.NextCursor == "" {
			break
		}
		req.Cursor = page.NextCursor
	}
	return nil
}

func resolveNow(flagValue string, f *fixture.File) (time.Time, error) {
	switch {
	case flagValue != "":
		t, err := time.Parse(time.RFC3339, flagValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid -now: %w", err)
		}
		return t, nil
	case f.Now != nil:
		return *f.Now, nil
	default:
		return time.Now(), nil
	}
}

func writeJSON(w io.Writer, page *feed.Page) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

func printPage(w io.Writer, n int, page *feed.Page, loc *time.Location) {
	fmt.Fprintf(w, "page %d", n)
	if page.Degraded {
		fmt.Fprintf(w, " (degraded: %s)", strings.Join(page.DegradedDependencies, ", "))
	}
	if page.FilteredByConstraints {
		fmt.Fprint(w, " (everything filtered by constraints)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tID\tCATEGORY\tWHEN\tTITLE\tREASON")
	for i, it := range page.Items {
		when := "anytime"
		if it.Item.StartsAt != nil {
			when = it.Item.StartsAt.In(loc).Format("Mon Jan 2 15:04")
		}
		fmt.Fprintf(tw, "%d\t%.0f\t%s\t%s\t%s\t%s\t%s\n",
			i+1, it.Score, it.ItemID, it.Item.Category.Label(), when, it.Item.Title, itemFlags(it))
	}
	tw.Flush()

	if len(page.Nearby) > 0 {
		fmt.Fprintln(w, "nearby:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, nb := range page.Nearby {
			fmt.Fprintf(tw, "  %s\t%.0fm\t%s\n", nb.ItemID, nb.DistanceMeters, nb.Item.Title)
		}
		tw.Flush()
	}
	if page.NextCursor != "" {
		fmt.Fprintf(w, "next cursor: %s\n", page.NextCursor)
	}
}

// itemFlags renders the reason, with a marker for exploration picks.
func itemFlags(it feed.Item) string {
	reason := string(it.Reason)
	if it.Exploration {
		if reason == "" {
			return "[explore]"
		}
		return reason + " [explore]"
	}
	return reason
}
