// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GroupeBH/zwanga-sub000/internal/ai"
	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/events"
	httptransport "github.com/GroupeBH/zwanga-sub000/internal/http"
	"github.com/GroupeBH/zwanga-sub000/internal/infra"
	"github.com/GroupeBH/zwanga-sub000/internal/logging"
	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/assistant"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/matching"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/position"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fatal("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		logger.Error("ZWANGA_FIREBASE_PROJECT_ID is required")
		os.Exit(1)
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		fatal("firebase init", err)
	}
	firebaseAuth, err := infra.NewFirebaseAuth(ctx, app)
	if err != nil {
		fatal("firebase auth", err)
	}
	fcm, err := infra.NewMessaging(ctx, app)
	if err != nil {
		fatal("firebase messaging", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		fatal("postgres", err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	publishers := events.Multi{events.NewPushPublisher(fcm)}
	if cfg.RabbitMQ.URL != "" {
		conn, err := infra.DialAMQP(cfg.RabbitMQ.URL)
		if err != nil {
			fatal("rabbitmq", err)
		}
		defer conn.Close()
		amqpPublisher, err := events.NewAMQPPublisher(conn, cfg.RabbitMQ.Exchange)
		if err != nil {
			fatal("rabbitmq", err)
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
	}

	var history position.HistoryWriter
	if len(cfg.Kafka.Brokers) > 0 {
		writer := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.PositionTopic)
		defer writer.Close()
		history = writer
	}

	var (
		estimator trip.Estimator
		places    *maps.PlacesService
	)
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region, cfg.Tracking.Language)
		if err != nil {
			fatal("maps routes", err)
		}
		estimator = routes
		places, err = maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Region, cfg.Tracking.Language)
		if err != nil {
			fatal("maps places", err)
		}
	} else {
		logger.Warn("ZWANGA_MAPS_API_KEY not set; using straight-line estimates and disabling place search")
	}

	tripSvc := trip.NewService(trip.NewStore(dbPool), estimator, publishers)
	bookingSvc := booking.NewService(booking.NewStore(dbPool), tripSvc, firebaseAuth, publishers, cfg.Booking)

	matchingSvc := matching.NewService(matching.NewStore(redisClient), nil, publishers, cfg.Matching)
	negotiationSvc := negotiation.NewService(negotiation.NewStore(dbPool), negotiation.Deps{
		Trips:    tripSvc,
		Bookings: bookingSvc,
		Identity: firebaseAuth,
		Index:    matchingSvc,
		Events:   publishers,
	})
	matchingSvc.SetRequests(negotiationSvc)

	positionSvc := position.NewService(position.NewStore(dbPool, redisClient), tripSvc, bookingSvc, history)
	hub := position.NewHub(positionSvc)

	deps := httptransport.ServerDeps{
		Verifier:       firebaseAuth,
		Requests:       negotiationSvc,
		Discovery:      matchingSvc,
		Trips:          tripSvc,
		Bookings:       bookingSvc,
		Drivers:        matchingSvc,
		Live:           hub,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	var finder assistant.PlaceFinder
	if places != nil {
		deps.Places = places
		finder = places
	}
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey)
		if err != nil {
			fatal("gemini", err)
		}
		defer gemini.Close()
		deps.Assistant = assistant.NewService(assistant.NewStore(dbPool), gemini, finder)
	}

	go matchingSvc.RunScheduler(ctx)

	server := httptransport.NewServer(cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, deps)
	if err := server.Run(ctx); err != nil {
		fatal("http server", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
