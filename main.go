package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"membership-bridge/internal/audit"
	"membership-bridge/internal/checkout"
	"membership-bridge/internal/config"
	"membership-bridge/internal/dedup"
	"membership-bridge/internal/logging"
	"membership-bridge/internal/membership"
	"membership-bridge/internal/metrics"
	"membership-bridge/internal/payment"
	"membership-bridge/internal/plan"
	"membership-bridge/internal/telegram"
	"membership-bridge/internal/webhook"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	cfg := config.MustLoadConfig(configPath)

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	paymentClient := payment.NewClient(cfg.Stripe, logger)
	telegramClient := telegram.NewClient(cfg.Telegram, logger)

	classifier := plan.NewClassifier(cfg.Plans)
	executor := membership.NewExecutor(telegramClient, cfg.Telegram, logger)

	var deduper webhook.Deduper
	if cfg.Database.Enabled() {
		connStr := dedup.ConnString(cfg.Database)

		if err := dedup.RunMigrations(connStr, "./migrations"); err != nil {
			log.Fatal(err)
		}

		pool, err := dedup.NewPool(context.Background(), connStr)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()

		deduper = dedup.NewRepository(pool)
	}

	var auditor webhook.Auditor
	if cfg.Kafka.Enabled() {
		writer := audit.NewWriter(cfg.Kafka)
		defer writer.Close()

		auditor = audit.NewPublisher(writer, logger)
	}

	dispatcher := webhook.NewDispatcher(paymentClient, classifier, executor, deduper, auditor, logger)
	checkoutHandler := checkout.NewHandler(paymentClient, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /stripe/webhook", dispatcher)
	mux.Handle("POST /checkout", checkoutHandler)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Starting server", "port", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}
