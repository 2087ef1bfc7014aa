package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/ai"
	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type UsageStore interface {
	UseToken(ctx context.Context, uid string, month string) error
	EnsureUser(ctx context.Context, uid string, month string) error
}

type PlaceFinder interface {
	Search(ctx context.Context, query string, near *types.Point) ([]maps.Place, error)
}

type Service struct {
	usage  UsageStore
	parser ai.DraftParser
	places PlaceFinder
	loc    *time.Location
	now    func() time.Time
}

// NewService wires the assistant. places may be nil, in which case the
// destination is returned as text only.
func NewService(usage UsageStore, parser ai.DraftParser, places PlaceFinder) *Service {
	loc, err := time.LoadLocation("Africa/Kinshasa")
	if err != nil {
		loc = time.FixedZone("WAT", 3600)
	}
	return &Service{usage: usage, parser: parser, places: places, loc: loc, now: time.Now}
}

type DraftCommand struct {
	UserID  string
	Message string
	Near    *types.Point
}

// UseToken deducts one token from the user's monthly allowance, creating the
// allowance on first use.
func (s *Service) UseToken(ctx context.Context, uid string) error {
	month := monthOf(s.now())
	err := s.usage.UseToken(ctx, uid, month)
	if !errors.Is(err, ErrQuotaExhausted) {
		return err
	}
	if initErr := s.usage.EnsureUser(ctx, uid, month); initErr != nil {
		return initErr
	}
	return s.usage.UseToken(ctx, uid, month)
}

func (s *Service) Draft(ctx context.Context, cmd DraftCommand) (*Draft, error) {
	if strings.TrimSpace(cmd.Message) == "" {
		return nil, ErrValidation
	}
	if err := s.UseToken(ctx, cmd.UserID); err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	currentContext := map[string]string{
		"current_time": now.Format(time.RFC3339),
		"timezone":     s.loc.String(),
	}
	if cmd.Near != nil {
		currentContext["user_location"] = cmd.Near.String()
	}

	result, err := s.parser.ParseDraft(ctx, cmd.Message, currentContext)
	if err != nil {
		return nil, fmt.Errorf("parse draft: %w", err)
	}

	d := &Draft{Origin: cmd.Near, Reply: result.Reply}
	if result.Seats != nil && *result.Seats > 0 {
		d.Seats = result.Seats
	}
	if result.PriceCeiling != nil && *result.PriceCeiling >= 0 {
		currency := types.DefaultCurrency
		if result.Currency != nil && *result.Currency != "" {
			currency = strings.ToUpper(*result.Currency)
		}
		d.PriceCeiling = &types.Money{Amount: *result.PriceCeiling, Currency: currency}
	}
	d.WindowStart, d.WindowEnd = parseWindow(result.WindowStart, result.WindowEnd)

	if result.Destination != nil && strings.TrimSpace(*result.Destination) != "" {
		d.DestinationText = strings.TrimSpace(*result.Destination)
		s.resolveDestination(ctx, d, cmd.Near)
	}
	return d, nil
}

// resolveDestination fills in the best Places match; lookup failures leave the text only.
func (s *Service) resolveDestination(ctx context.Context, d *Draft, near *types.Point) {
	if s.places == nil {
		return
	}
	found, err := s.places.Search(ctx, d.DestinationText, near)
	if err != nil {
		slog.WarnContext(ctx, "resolve draft destination failed", "query", d.DestinationText, "error", err)
		return
	}
	if len(found) == 0 {
		return
	}
	loc := found[0].Location
	d.Destination = &loc
	d.DestinationName = found[0].Name
}

func parseWindow(startRaw, endRaw *string) (*time.Time, *time.Time) {
	start := parseTime(startRaw)
	if start == nil {
		return nil, nil
	}
	end := parseTime(endRaw)
	if end == nil || end.Before(*start) {
		e := start.Add(defaultWindow)
		end = &e
	}
	return start, end
}

func parseTime(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &t
}
