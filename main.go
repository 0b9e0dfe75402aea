package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/api"
	"regulonlabs.com/casedesk/internal/citations"
	"regulonlabs.com/casedesk/internal/dal"
	"regulonlabs.com/casedesk/internal/metrics"
	"regulonlabs.com/casedesk/internal/pipeline"
	"regulonlabs.com/casedesk/internal/ratelimit"
	"regulonlabs.com/casedesk/pkg/zerolog_config"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(".env"); err != nil {
		log.Info().Msg("No .env file found, assuming environment variables are set")
	}

	elasticsearchURL := getEnvOrDefault("ELASTICSEARCH_URL", "")
	apiPort := getEnvOrDefault("API_PORT", "8080")
	apiLogLevel := getEnvOrDefault("API_LOG_LEVEL", "info")

	zerolog_config.SetAppPrefix("casedesk")
	if err := zerolog_config.StartupWithEnv(elasticsearchURL, "logs", apiLogLevel); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	log.Info().Msg("Starting casedesk API service")

	// Optional system metrics collection
	metrics.StartSystemMetrics(15 * time.Second)

	// Database connection
	conn, err := dal.NewConnection()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Couchbase")
	}

	// Wire the submission pipeline and HTTP surface
	agents := dal.NewAgentModel(conn)
	cases := dal.NewCaseModel(conn)
	policies := dal.NewPolicyModel(conn)
	activity := dal.NewActivityModel(conn)

	limiter := ratelimit.NewRegistryFromEnv()
	p := pipeline.New(
		limiter,
		dal.NewIdempotencyModel(conn),
		citations.NewValidator(policies),
		cases,
		agents,
		activity,
	)

	server := api.NewServer(agents, cases, policies, activity, p, limiter)
	server.SetPinger(conn)
	router := api.SetupRoutes(server)

	httpServer := &http.Server{
		Addr:    ":" + apiPort,
		Handler: router,
	}

	// Listen for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().
			Str("port", apiPort).
			Msg("Server starting")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().
				Err(err).
				Msg("Failed to start server")
		}
	}()

	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Closing database connection...")
	if err := conn.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connection")
	}

	log.Info().Msg("API service shutdown complete")
}

// Helper function to get environment variable with default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
