// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/clock"
	"github.com/Shivanand-hulikatti/cofeast/internal/config"
	"github.com/Shivanand-hulikatti/cofeast/internal/database"
	"github.com/Shivanand-hulikatti/cofeast/internal/geocode"
	"github.com/Shivanand-hulikatti/cofeast/internal/handler"
	"github.com/Shivanand-hulikatti/cofeast/internal/notify"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
	"github.com/Shivanand-hulikatti/cofeast/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	log.Println("✓ Connected to PostgreSQL")

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// ── 2. Notifications ──────────────────────────────────────────────────
	notifier, closer, err := buildNotifier(cfg)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyWorkers, cfg.NotifyQueueSize)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	partRepo := repository.NewParticipationRepository(pool)
	tx := repository.NewTransactor(pool, cfg.LockTimeout)
	clk := clock.NewSystem()

	engine := service.NewReservationEngine(tx, eventRepo, partRepo, dispatcher, clk)
	eventSvc := service.NewEventService(tx, eventRepo, partRepo, buildGeocoder(cfg), clk)
	mealHandler := handler.NewMealHandler(eventSvc, engine)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger)
	r.Use(handler.CORS(cfg.CORSOrigins))

	r.Get("/health", handler.HealthCheck)
	mealHandler.Routes(r)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("✓ Server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	// Flush notifications produced by requests that finished before shutdown.
	dispatcher.Close()
	log.Println("server stopped")
}

// buildNotifier picks the delivery backend named by NOTIFIER. The returned
// closer is nil when the backend holds no connection.
func buildNotifier(cfg config.Config) (notify.Notifier, io.Closer, error) {
	switch cfg.Notifier {
	case "amqp":
		pub, err := notify.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("✓ Publishing notifications to exchange %q", cfg.RabbitMQExchange)
		return pub, pub, nil
	case "mailersend":
		if cfg.MailerSendAPIKey == "" || cfg.MailerSendEmail == "" {
			return nil, nil, fmt.Errorf("MAILERSEND_API_KEY and MAILERSEND_EMAIL are required")
		}
		return notify.NewMailer(cfg.MailerSendAPIKey, cfg.MailerSendEmail, cfg.MailerSendName), nil, nil
	case "log", "":
		return notify.NewLogNotifier(log.Default()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown NOTIFIER %q", cfg.Notifier)
	}
}

func buildGeocoder(cfg config.Config) service.Geocoder {
	if cfg.Geocoder == "arcgis" {
		return geocode.NewArcGIS(cfg.GeocoderURL, nil)
	}
	return geocode.None{}
}
