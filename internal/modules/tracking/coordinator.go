package tracking

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/geo"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/observability"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// Channel is the live-position transport a session joins for one trip.
type Channel interface {
	Join(ctx context.Context, tripID types.ID) error
	Leave(ctx context.Context, tripID types.ID) error
	UpdatePosition(ctx context.Context, tripID types.ID, p Position) error
	RequestPosition(ctx context.Context, tripID types.ID) error
	Positions() <-chan RemotePosition
}

// Reporter receives the driver's derived trip progress.
type Reporter interface {
	ReportProgress(ctx context.Context, tripID types.ID, progress int) error
}

type Deps struct {
	Provider Provider
	Channel  Channel
	Listener Listener
	Reporter Reporter
}

type routeResult struct {
	token uint64
	route *Route
}

// Coordinator runs one tracking session. All state below the channels is
// owned by the Run goroutine.
type Coordinator struct {
	cfg      config.TrackingConfig
	role     Role
	trip     *trip.Trip
	provider Provider
	channel  Channel
	listener Listener
	reporter Reporter

	fixes     chan Position
	snapshots chan []*booking.Booking
	results   chan routeResult

	alive   *atomic.Bool
	session context.Context
	cancel  context.CancelFunc

	position  *Position
	heading   HeadingSmoother
	local     Throttle
	broadcast Throttle
	recheck   Throttle

	waypoints      []Waypoint
	prompted       map[string]bool
	route          *Route
	stepIndex      int
	token          uint64
	lastComputed   time.Time
	computed       bool
	lastUnresolved int
}

func NewCoordinator(cfg config.TrackingConfig, role Role, t *trip.Trip, bookings []*booking.Booking, deps Deps) *Coordinator {
	cfg = withDefaults(cfg)
	listener := deps.Listener
	if listener == nil {
		listener = ListenerFunc(func(Event) {})
	}
	c := &Coordinator{
		cfg:       cfg,
		role:      role,
		trip:      t,
		provider:  deps.Provider,
		channel:   deps.Channel,
		listener:  listener,
		reporter:  deps.Reporter,
		fixes:     make(chan Position, 16),
		snapshots: make(chan []*booking.Booking, 4),
		results:   make(chan routeResult, 4),
		alive:     &atomic.Bool{},
		local:     NewThrottle(cfg.LocalInterval),
		broadcast: NewThrottle(cfg.BroadcastInterval),
		recheck:   NewThrottle(cfg.RecheckInterval),
		prompted:  make(map[string]bool),
	}
	c.session, c.cancel = context.WithCancel(context.Background())
	c.alive.Store(true)
	c.waypoints = DeriveWaypoints(t, bookings)
	return c
}

// Submit queues a GPS fix from the device. It blocks only when the session is
// backed up, and gives up once ctx ends.
func (c *Coordinator) Submit(ctx context.Context, p Position) error {
	select {
	case c.fixes <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateBookings replaces the booking snapshot the waypoints derive from.
func (c *Coordinator) UpdateBookings(ctx context.Context, bookings []*booking.Booking) error {
	select {
	case c.snapshots <- bookings:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run joins the trip channel and processes events until ctx ends, then tears
// the session down.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.teardown()

	var remote <-chan RemotePosition
	if c.channel != nil {
		if err := c.channel.Join(ctx, c.trip.ID); err != nil {
			return err
		}
		remote = c.channel.Positions()
		if c.role == RoleObserver {
			if err := c.channel.RequestPosition(ctx, c.trip.ID); err != nil {
				slog.DebugContext(ctx, "request current position failed", "trip_id", c.trip.ID, "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-c.fixes:
			c.HandlePosition(p)
		case rp, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			c.HandleRemote(rp)
		case bs := <-c.snapshots:
			c.SetBookings(bs)
		case res := <-c.results:
			c.applyRoute(res)
		}
	}
}

// HandlePosition ingests a fix from this device. Only driver sessions
// broadcast it.
func (c *Coordinator) HandlePosition(p Position) {
	if !c.alive.Load() {
		return
	}
	p.Heading = c.heading.Update(p.Heading, p.Speed)
	c.ingest(p, c.role == RoleDriver)
}

// HandleRemote reconciles a position broadcast by the driver; anything older
// than the current state is ignored.
func (c *Coordinator) HandleRemote(rp RemotePosition) {
	if !c.alive.Load() || rp.TripID != c.trip.ID {
		return
	}
	if c.position != nil && rp.At.Before(c.position.At) {
		return
	}
	p := Position{Point: rp.Point, At: rp.At}
	if c.position != nil {
		p.Heading = c.position.Heading
	}
	if rp.Heading != nil {
		p.Heading = geo.NormalizeHeading(*rp.Heading)
	}
	c.ingest(p, false)
}

func (c *Coordinator) ingest(p Position, broadcast bool) {
	c.position = &p

	if c.local.Allow(p.At) {
		c.emit(Event{Kind: EventPositionUpdated, Position: &p})
		c.checkProximity(p)
		c.advanceStep(p)
	}
	if broadcast && c.channel != nil && c.broadcast.Allow(p.At) {
		go c.send(p)
	}
	if c.recheck.Allow(p.At) {
		c.maybeRecompute(p.At)
		c.emitETA()
		if c.role == RoleDriver && c.reporter != nil {
			go c.report(Progress(c.trip, p.Point))
		}
	}
}

// SetBookings re-derives waypoints. A changed stop count is picked up by the
// next recheck.
func (c *Coordinator) SetBookings(bookings []*booking.Booking) {
	if !c.alive.Load() {
		return
	}
	c.waypoints = DeriveWaypoints(c.trip, bookings)
}

func (c *Coordinator) Waypoints() []Waypoint {
	return append([]Waypoint(nil), c.waypoints...)
}

func (c *Coordinator) Route() *Route {
	return c.route
}

func (c *Coordinator) checkProximity(p Position) {
	w, ok := Current(c.waypoints)
	if !ok || c.prompted[w.key()] {
		return
	}
	if geo.DistanceMeters(p.Point, w.Point) < c.cfg.ProximityMeters {
		c.prompted[w.key()] = true
		c.emit(Event{Kind: EventWaypointNearby, Waypoint: &w, Position: &p})
	}
}

func (c *Coordinator) advanceStep(p Position) {
	if c.route == nil || c.stepIndex >= len(c.route.Steps) {
		return
	}
	step := c.route.Steps[c.stepIndex]
	if geo.DistanceMeters(p.Point, step.End) >= c.cfg.StepAdvanceMeters {
		return
	}
	c.stepIndex++
	if c.stepIndex < len(c.route.Steps) {
		next := c.route.Steps[c.stepIndex]
		c.emit(Event{Kind: EventStepAdvanced, Step: &next})
		return
	}
	c.emit(Event{Kind: EventStepAdvanced})
}

func (c *Coordinator) maybeRecompute(now time.Time) {
	unresolved := len(Unresolved(c.waypoints))
	if c.route != nil && unresolved == c.lastUnresolved {
		return
	}
	if c.computed && now.Sub(c.lastComputed) < c.cfg.RouteCooldown {
		return
	}
	c.requestRoute(now)
}

// requestRoute issues an async route computation tagged with a fresh token.
// Earlier requests keep running; their results lose to the newer token.
func (c *Coordinator) requestRoute(now time.Time) uint64 {
	c.token++
	token := c.token
	c.lastComputed = now
	c.computed = true

	origin := c.trip.Origin
	if c.position != nil {
		origin = c.position.Point
	}
	stops := Unresolved(c.waypoints)
	c.lastUnresolved = len(stops)
	req := RouteRequest{
		Origin:      origin,
		Destination: c.trip.Destination,
		Mode:        ModeDriving,
		Optimize:    false,
		Language:    c.cfg.Language,
	}
	for _, w := range stops {
		req.Waypoints = append(req.Waypoints, w.Point)
	}

	alive := c.alive
	ctx := c.session
	go func() {
		route := c.compute(ctx, req)
		if !alive.Load() {
			return
		}
		route.Token = token
		select {
		case c.results <- routeResult{token: token, route: route}:
		case <-ctx.Done():
		}
	}()
	return token
}

func (c *Coordinator) compute(ctx context.Context, req RouteRequest) *Route {
	stops := make([]types.Point, 0, len(req.Waypoints)+2)
	stops = append(stops, req.Origin)
	stops = append(stops, req.Waypoints...)
	stops = append(stops, req.Destination)

	if c.provider == nil {
		observability.RouteComputations.WithLabelValues("fallback").Inc()
		return StraightLine(stops)
	}
	routes, err := c.provider.Directions(ctx, req)
	if err == nil && len(routes) == 0 {
		err = ErrNoRoute
	}
	var route *Route
	if err == nil {
		route, err = BuildRoute(routes[0], c.cfg.PointBudget)
	}
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("route provider failed, using straight line", "trip_id", c.trip.ID, "error", err)
		}
		observability.RouteComputations.WithLabelValues("fallback").Inc()
		return StraightLine(stops)
	}
	observability.RouteComputations.WithLabelValues("provider").Inc()
	return route
}

func (c *Coordinator) applyRoute(res routeResult) bool {
	if !c.alive.Load() {
		return false
	}
	if res.token != c.token {
		observability.RouteStaleDiscarded.Inc()
		return false
	}
	c.route = res.route
	c.stepIndex = 0
	c.emit(Event{Kind: EventRouteUpdated, Route: res.route})
	c.emitETA()
	return true
}

func (c *Coordinator) emitETA() {
	if c.position == nil {
		return
	}
	progress := Progress(c.trip, c.position.Point)
	if eta, ok := RemainingETA(c.route, c.stepIndex, c.position.Point); ok {
		c.emit(Event{Kind: EventETAUpdated, ETA: eta, Progress: progress})
		return
	}
	c.emit(Event{Kind: EventETAUpdated, ETA: FallbackETA(c.trip, progress), Progress: progress, Estimated: true})
}

func (c *Coordinator) send(p Position) {
	if err := c.channel.UpdatePosition(c.session, c.trip.ID, p); err != nil {
		observability.BroadcastFailures.Inc()
		slog.Debug("position broadcast failed", "trip_id", c.trip.ID, "error", err)
	}
}

func (c *Coordinator) report(progress int) {
	if err := c.reporter.ReportProgress(c.session, c.trip.ID, progress); err != nil {
		slog.Debug("progress report failed", "trip_id", c.trip.ID, "error", err)
	}
}

func (c *Coordinator) emit(e Event) {
	c.listener.HandleEvent(e)
}

// teardown stops everything the session started: in-flight routes are
// cancelled and can no longer land, the channel subscription is released and
// the throttles start over.
func (c *Coordinator) teardown() {
	c.alive.Store(false)
	c.cancel()
	if c.channel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.channel.Leave(ctx, c.trip.ID); err != nil {
			slog.Debug("leave trip channel failed", "trip_id", c.trip.ID, "error", err)
		}
		cancel()
	}
	c.local.Reset()
	c.broadcast.Reset()
	c.recheck.Reset()
	c.heading.Reset()
	c.prompted = make(map[string]bool)
}
