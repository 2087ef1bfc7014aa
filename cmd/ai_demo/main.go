// README: Manual check of the request-draft prompt against the live Gemini API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/ai"
)

func main() {
	message := flag.String("m", "Demain à 7h30 je vais à l'UPN, 2 places, max 5000 FC", "rider message")
	location := flag.String("near", "-4.3250,15.3222", "rider location as lat,lng")
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider, err := ai.NewGeminiProvider(ctx, apiKey)
	if err != nil {
		log.Fatalf("Failed to initialize AI provider: %v", err)
	}
	defer provider.Close()

	loc, err := time.LoadLocation("Africa/Kinshasa")
	if err != nil {
		loc = time.UTC
	}
	currentContext := map[string]string{
		"current_time":  time.Now().In(loc).Format(time.RFC3339),
		"timezone":      loc.String(),
		"user_location": *location,
	}

	fmt.Printf("Rider: %s\n", *message)
	result, err := provider.ParseDraft(ctx, *message, currentContext)
	if err != nil {
		log.Fatalf("Error parsing draft: %v", err)
	}

	fmt.Printf("Reply: %s\n", result.Reply)
	printField("Destination", result.Destination)
	printField("Window start", result.WindowStart)
	printField("Window end", result.WindowEnd)
	printField("Currency", result.Currency)
	if result.Seats != nil {
		fmt.Printf("Seats: %d\n", *result.Seats)
	}
	if result.PriceCeiling != nil {
		fmt.Printf("Price ceiling: %d\n", *result.PriceCeiling)
	}
}

func printField(name string, v *string) {
	if v != nil {
		fmt.Printf("%s: %s\n", name, *v)
	}
}
