package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-2.0-flash"

// GeminiProvider implements DraftParser using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(geminiModel)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) ParseDraft(ctx context.Context, userMessage string, currentContext map[string]string) (*DraftResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("gemini: empty message")
	}
	fullPrompt := fmt.Sprintf("%s\n\nRider message: %s", buildSystemPrompt(currentContext), userMessage)

	resp, err := p.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return decodeDraft(responseText.String())
}

func decodeDraft(raw string) (*DraftResult, error) {
	cleanJSON := cleanJSONString(raw)
	var result DraftResult
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &result, nil
}

func buildSystemPrompt(ctxMap map[string]string) string {
	currentTime := ctxMap["current_time"]
	userLocation := ctxMap["user_location"]
	timezone := ctxMap["timezone"]

	if currentTime == "" {
		currentTime = "UNKNOWN_TIME"
	}
	if userLocation == "" {
		userLocation = "UNKNOWN_LOCATION"
	}
	if timezone == "" {
		timezone = "Africa/Kinshasa"
	}

	return fmt.Sprintf(`Role: You fill in carpool trip request drafts for "Zwanga", a ride-sharing app in Kinshasa.
Context:
- Current time: %s (%s)
- Rider location: %s

Return ONE JSON object with these keys:
- "destination": the place the rider wants to go, copied from the message. null if absent.
- "window_start", "window_end": RFC3339 timestamps with offset bounding when the rider can leave.
  A single time "vers 7h" means a window of 30 minutes starting then. "demain matin" means tomorrow 06:00 to 09:00.
  A time earlier than the current time today means tomorrow. null if absent.
- "seats": number of seats, 1 if the rider speaks only of themselves. null if unclear.
- "price_ceiling": the maximum price per seat as an integer. null if absent.
- "currency": "CDF" or "USD" when a price is given, else null.
- "reply": one short sentence in the rider's language summarizing the draft or asking for what is missing.

Never invent a destination or a price. Do not add other keys.`, currentTime, timezone, userLocation)
}

// cleanJSONString strips markdown fences the model sometimes adds despite JSON mode.
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
