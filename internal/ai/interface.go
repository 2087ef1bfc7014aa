package ai

import (
	"context"
)

// DraftParser turns a rider's free-text message into a structured trip request draft.
// currentContext carries "current_time", "user_location" and "timezone".
type DraftParser interface {
	ParseDraft(ctx context.Context, userMessage string, currentContext map[string]string) (*DraftResult, error)
}
