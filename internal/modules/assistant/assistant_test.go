// README: Assistant tests: quota boundaries, draft shaping and destination lookup.
package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/ai"
	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/testutil"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type memUsage struct {
	mu   sync.Mutex
	rows map[string]*usageRow
}

type usageRow struct {
	remaining int
	month     string
}

func newMemUsage() *memUsage {
	return &memUsage{rows: map[string]*usageRow{}}
}

func (m *memUsage) UseToken(_ context.Context, uid, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[uid]
	if !ok || (r.month >= month && r.remaining <= 0) {
		return ErrQuotaExhausted
	}
	if r.month != month {
		r.remaining = DefaultTokens
		r.month = month
	}
	r.remaining--
	return nil
}

func (m *memUsage) EnsureUser(_ context.Context, uid, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[uid]; !ok {
		m.rows[uid] = &usageRow{remaining: DefaultTokens, month: month}
	}
	return nil
}

type stubParser struct {
	result *ai.DraftResult
	err    error
	got    map[string]string
}

func (s *stubParser) ParseDraft(_ context.Context, _ string, currentContext map[string]string) (*ai.DraftResult, error) {
	s.got = currentContext
	return s.result, s.err
}

type stubPlaces struct {
	places []maps.Place
	err    error
}

func (s stubPlaces) Search(context.Context, string, *types.Point) ([]maps.Place, error) {
	return s.places, s.err
}

func ptr[T any](v T) *T { return &v }

var (
	now    = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	gombe  = types.Point{Lat: -4.3036, Lng: 15.3050}
	limete = types.Point{Lat: -4.3690, Lng: 15.3420}
)

func newTestService(parser *stubParser, places PlaceFinder) (*Service, *memUsage) {
	usage := newMemUsage()
	svc := NewService(usage, parser, places)
	svc.now = func() time.Time { return now }
	return svc, usage
}

func TestDraftShapesParserOutput(t *testing.T) {
	parser := &stubParser{result: &ai.DraftResult{
		Destination:  ptr("Limete 7e rue"),
		WindowStart:  ptr("2026-03-02T08:00:00+01:00"),
		Seats:        ptr(2),
		PriceCeiling: ptr(int64(5000)),
		Reply:        "Brouillon prêt",
	}}
	svc, _ := newTestService(parser, stubPlaces{places: []maps.Place{{Name: "7e Rue Limete", Location: limete}}})

	d, err := svc.Draft(context.Background(), DraftCommand{UserID: "rider-1", Message: "Limete demain 8h, 2 places, max 5000", Near: &gombe})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if d.Destination == nil || *d.Destination != limete || d.DestinationName != "7e Rue Limete" {
		t.Fatalf("destination not resolved: %+v", d)
	}
	if d.WindowStart == nil || d.WindowEnd == nil || d.WindowEnd.Sub(*d.WindowStart) != defaultWindow {
		t.Fatalf("expected default window, got %v..%v", d.WindowStart, d.WindowEnd)
	}
	if d.PriceCeiling == nil || d.PriceCeiling.Currency != types.DefaultCurrency {
		t.Fatalf("expected ceiling in default currency, got %+v", d.PriceCeiling)
	}
	if d.Origin == nil || *d.Origin != gombe {
		t.Fatalf("origin should default to the caller position")
	}
	if parser.got["user_location"] != gombe.String() || parser.got["current_time"] == "" {
		t.Fatalf("context not passed to parser: %v", parser.got)
	}
}

func TestDraftKeepsTextWhenLookupFails(t *testing.T) {
	parser := &stubParser{result: &ai.DraftResult{Destination: ptr("Marché central"), WindowStart: ptr("not a time")}}
	svc, _ := newTestService(parser, stubPlaces{err: errors.New("quota")})

	d, err := svc.Draft(context.Background(), DraftCommand{UserID: "rider-1", Message: "marché central"})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if d.DestinationText != "Marché central" || d.Destination != nil {
		t.Fatalf("unexpected destination %+v", d)
	}
	if d.WindowStart != nil || d.WindowEnd != nil {
		t.Fatal("unparseable window must be dropped")
	}
}

func TestDraftValidation(t *testing.T) {
	svc, usage := newTestService(&stubParser{result: &ai.DraftResult{}}, nil)
	if _, err := svc.Draft(context.Background(), DraftCommand{UserID: "rider-1", Message: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(usage.rows) != 0 {
		t.Fatal("an empty message must not consume quota")
	}
}

func TestQuotaExhausted(t *testing.T) {
	svc, usage := newTestService(&stubParser{result: &ai.DraftResult{}}, nil)
	usage.rows["rider-1"] = &usageRow{remaining: 0, month: monthOf(now)}

	if _, err := svc.Draft(context.Background(), DraftCommand{UserID: "rider-1", Message: "Gombe"}); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
}

func TestQuotaResetsOnNewMonth(t *testing.T) {
	svc, usage := newTestService(&stubParser{result: &ai.DraftResult{}}, nil)
	usage.rows["rider-1"] = &usageRow{remaining: 0, month: "2026-02"}

	if err := svc.UseToken(context.Background(), "rider-1"); err != nil {
		t.Fatalf("use token: %v", err)
	}
	if got := usage.rows["rider-1"].remaining; got != DefaultTokens-1 {
		t.Fatalf("expected %d remaining, got %d", DefaultTokens-1, got)
	}
}

func TestParserErrorIsWrapped(t *testing.T) {
	cause := errors.New("model unavailable")
	svc, _ := newTestService(&stubParser{err: cause}, nil)
	if _, err := svc.Draft(context.Background(), DraftCommand{UserID: "rider-1", Message: "Gombe"}); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped parser error, got %v", err)
	}
}

func TestStoreQuotaBoundary(t *testing.T) {
	db := testutil.OpenDB(t, "assistant_usage")
	store := NewStore(db)
	ctx := context.Background()
	month := monthOf(now)

	if _, err := db.Exec(ctx, "INSERT INTO assistant_usage VALUES ('user_reset', 0, '2000-01')"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.UseToken(ctx, "user_reset", month); err != nil {
		t.Fatalf("UseToken after cross-month reset: %v", err)
	}

	if _, err := db.Exec(ctx, "INSERT INTO assistant_usage VALUES ('user_zero', 0, $1)", month); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.UseToken(ctx, "user_zero", month); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}

	if err := store.UseToken(ctx, "user_new", month); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("absent user must report exhausted before EnsureUser, got %v", err)
	}
	if err := store.EnsureUser(ctx, "user_new", month); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := store.UseToken(ctx, "user_new", month); err != nil {
		t.Fatalf("use after ensure: %v", err)
	}
	var remaining int
	if err := db.QueryRow(ctx, "SELECT tokens_remaining FROM assistant_usage WHERE uid = 'user_new'").Scan(&remaining); err != nil {
		t.Fatalf("query: %v", err)
	}
	if remaining != DefaultTokens-1 {
		t.Fatalf("expected %d tokens remaining, got %d", DefaultTokens-1, remaining)
	}
}
