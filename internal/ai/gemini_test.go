package ai

import (
	"strings"
	"testing"
)

func TestDecodeDraftStripsFences(t *testing.T) {
	raw := "```json\n{\"destination\":\"Limete 7e rue\",\"seats\":2,\"price_ceiling\":5000,\"currency\":\"CDF\",\"reply\":\"ok\"}\n```"
	d, err := decodeDraft(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Destination == nil || *d.Destination != "Limete 7e rue" {
		t.Fatalf("unexpected destination %v", d.Destination)
	}
	if d.Seats == nil || *d.Seats != 2 || d.PriceCeiling == nil || *d.PriceCeiling != 5000 {
		t.Fatalf("unexpected draft %+v", d)
	}
	if d.WindowStart != nil {
		t.Fatalf("missing window must stay nil")
	}
}

func TestDecodeDraftRejectsProse(t *testing.T) {
	if _, err := decodeDraft("Je ne comprends pas"); err == nil {
		t.Fatal("expected an error for non-JSON output")
	}
}

func TestSystemPromptDefaults(t *testing.T) {
	p := buildSystemPrompt(map[string]string{"current_time": "2026-03-02T07:00:00+01:00"})
	if !strings.Contains(p, "UNKNOWN_LOCATION") || !strings.Contains(p, "Africa/Kinshasa") {
		t.Fatalf("prompt is missing defaults:\n%s", p)
	}
}
