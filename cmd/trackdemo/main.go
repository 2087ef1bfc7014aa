// README: Tracking demo; joins a trip's live channel and drives a coordinator
// session from simulated fixes (driver) or remote positions (observer).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/geo"
	"github.com/GroupeBH/zwanga-sub000/internal/logging"
	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/position"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/tracking"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type demoConfig struct {
	BaseURL string
	Token   string
	TripID  string
	Role    string
	Steps   int
	Every   time.Duration
}

func main() {
	cfg, err := config.Load()
	logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fatal("invalid configuration", err)
	}

	var demo demoConfig
	flag.StringVar(&demo.BaseURL, "base-url", envOrDefault("ZWANGA_DEMO_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&demo.Token, "token", os.Getenv("ZWANGA_DEMO_ID_TOKEN"), "Firebase ID token")
	flag.StringVar(&demo.TripID, "trip", "", "trip id")
	flag.StringVar(&demo.Role, "role", string(tracking.RoleDriver), "driver or observer")
	flag.IntVar(&demo.Steps, "steps", 60, "simulated fixes between origin and destination")
	flag.DurationVar(&demo.Every, "every", time.Second, "delay between simulated fixes")
	flag.Parse()
	demo.BaseURL = strings.TrimRight(demo.BaseURL, "/")

	if demo.TripID == "" || demo.Token == "" {
		slog.Error("-trip and -token are required")
		os.Exit(2)
	}
	role := tracking.Role(demo.Role)
	if role != tracking.RoleDriver && role != tracking.RoleObserver {
		slog.Error("unknown role", "role", demo.Role)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := newAPIClient(demo.BaseURL, demo.Token)
	tripID := types.ID(demo.TripID)
	t, err := api.Trip(ctx, tripID)
	if err != nil {
		fatal("load trip", err)
	}
	bookings, err := api.Bookings(ctx, tripID)
	if err != nil {
		fatal("load bookings", err)
	}

	live, err := position.Dial(ctx, liveURL(demo.BaseURL, tripID), demo.Token)
	if err != nil {
		fatal("dial live channel", err)
	}
	defer live.Close()
	go func() {
		for msg := range live.Errors() {
			slog.Warn("live channel error", "message", msg)
		}
	}()

	deps := tracking.Deps{
		Channel:  live,
		Listener: tracking.ListenerFunc(logEvent),
	}
	if role == tracking.RoleDriver {
		deps.Reporter = api
	}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region, cfg.Tracking.Language)
		if err != nil {
			fatal("maps routes", err)
		}
		deps.Provider = routes
	}

	coord := tracking.NewCoordinator(cfg.Tracking, role, t, bookings, deps)
	if role == tracking.RoleDriver {
		go simulate(ctx, coord, t.Origin, t.Destination, demo.Steps, demo.Every)
	}
	if err := coord.Run(ctx); err != nil {
		fatal("tracking session", err)
	}
}

// simulate walks a straight line from origin to destination.
func simulate(ctx context.Context, coord *tracking.Coordinator, from, to types.Point, steps int, every time.Duration) {
	if steps < 1 {
		steps = 1
	}
	heading := geo.Bearing(from, to)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		p := tracking.Position{
			Point:   types.Point{Lat: from.Lat + (to.Lat-from.Lat)*f, Lng: from.Lng + (to.Lng-from.Lng)*f},
			Heading: heading,
			Speed:   8,
			At:      time.Now(),
		}
		if err := coord.Submit(ctx, p); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	slog.Info("simulation finished")
}

func logEvent(e tracking.Event) {
	attrs := []any{"kind", e.Kind}
	switch e.Kind {
	case tracking.EventPositionUpdated:
		attrs = append(attrs, "point", e.Position.Point.String(), "heading", e.Position.Heading)
	case tracking.EventETAUpdated:
		attrs = append(attrs, "eta", e.ETA, "progress", e.Progress, "estimated", e.Estimated)
	case tracking.EventWaypointNearby:
		attrs = append(attrs, "booking_id", e.Waypoint.BookingID, "waypoint", e.Waypoint.Kind)
	case tracking.EventRouteUpdated:
		attrs = append(attrs, "distance_m", e.Route.DistanceMeters, "available", e.Route.Available)
	}
	slog.Info("tracking event", attrs...)
}

func liveURL(base string, tripID types.ID) string {
	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return ws + "/api/trips/" + string(tripID) + "/live"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
