package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected addr %q", cfg.HTTP.Addr)
	}
	if cfg.Tracking.RouteCooldown != 30*time.Second {
		t.Errorf("unexpected cooldown %s", cfg.Tracking.RouteCooldown)
	}
	if cfg.Booking.MaxSeatsPerRider != 4 {
		t.Errorf("unexpected per-rider cap %d", cfg.Booking.MaxSeatsPerRider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ZWANGA_TRACK_ROUTE_COOLDOWN", "45s")
	t.Setenv("ZWANGA_KAFKA_BROKERS", "k1:9092, k2:9092,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracking.RouteCooldown != 45*time.Second {
		t.Errorf("cooldown override ignored: %s", cfg.Tracking.RouteCooldown)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("ZWANGA_TRACK_LOCAL_INTERVAL", "soon")
	t.Setenv("ZWANGA_MAX_SEATS_PER_RIDER", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid values")
	}
}
