package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mentiq/dashboard-api/internal/admin"
	"github.com/mentiq/dashboard-api/internal/api"
	"github.com/mentiq/dashboard-api/internal/auth"
	"github.com/mentiq/dashboard-api/internal/backend"
	"github.com/mentiq/dashboard-api/internal/billing"
	"github.com/mentiq/dashboard-api/internal/config"
	"github.com/mentiq/dashboard-api/internal/events"
	"github.com/mentiq/dashboard-api/internal/healthscore"
	"github.com/mentiq/dashboard-api/internal/mailchimp"
	"github.com/mentiq/dashboard-api/internal/retention"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "config/config.yaml", "Configuration file path")
		showVer     = flag.Bool("version", false, "Show version information")
		showHelpMsg = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *showHelpMsg {
		showHelp()
		return
	}

	if *showVer {
		showVersion()
		return
	}

	log.Printf("Starting Mentiq dashboard API v%s (commit: %s, built: %s)", version, commit, date)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	deps, cleanup := buildDeps(cfg)
	defer cleanup()

	gateway := api.NewGateway(cfg.API, deps)

	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API gateway failed: %v", err)
		}
	}()

	waitForShutdown(gateway)
}

// buildDeps wires every service the gateway routes to. Services whose
// configuration is absent stay nil; the gateway answers 503 on their routes.
// The returned cleanup closes anything holding connections.
func buildDeps(cfg *config.Config) (api.Deps, func()) {
	backendClient := backend.NewClient(cfg.Backend)
	sessions := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	deps := api.Deps{
		Engine:   healthscore.NewEngine(cfg.Score),
		Sessions: sessions,
		Admin:    admin.NewService(backendClient, sessions),
	}

	if cfg.Stripe.SecretKey != "" {
		deps.Billing = billing.NewService(cfg.Stripe, backendClient)
	} else {
		log.Println("Stripe not configured; billing routes disabled")
	}

	if cfg.Mailchimp.ClientID != "" {
		var tokens mailchimp.TokenStore
		if cfg.Redis.Addr != "" {
			tokens = mailchimp.NewRedisTokenStore(cfg.Redis)
		} else {
			log.Println("Redis not configured; Mailchimp tokens held in memory")
			tokens = mailchimp.NewMemoryTokenStore()
		}
		deps.Mailchimp = mailchimp.NewService(cfg.Mailchimp, tokens, backendClient)
	} else {
		log.Println("Mailchimp not configured; integration routes disabled")
	}

	if cfg.OpenAI.APIKey != "" {
		deps.Composer = retention.NewComposer(cfg.OpenAI)
	} else {
		log.Println("OpenAI not configured; retention email drafting disabled")
	}

	cleanup := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		deps.Events = producer
		cleanup = func() {
			if err := producer.Close(); err != nil {
				log.Printf("Error closing event producer: %v", err)
			}
		}
	} else {
		log.Println("Kafka not configured; score events disabled")
	}

	return deps, cleanup
}

func showHelp() {
	fmt.Printf(`Mentiq - Retention Analytics Dashboard API

Usage:
  mentiq [flags]

Flags:
  -config string
        Configuration file path (default "config/config.yaml")
  -version
        Show version information
  -help
        Show this help message

Examples:
  mentiq                                    # Start with default config
  mentiq -config config/production.yaml     # Start with production config
  mentiq -version                           # Show version
`)
}

func showVersion() {
	fmt.Printf("Mentiq dashboard API version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}

func waitForShutdown(gateway *api.Gateway) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("Error during gateway shutdown: %v", err)
	}

	log.Println("Mentiq dashboard API stopped")
}
