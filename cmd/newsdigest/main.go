package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"newsdigest/internal/app"
	"newsdigest/internal/config"
	"newsdigest/internal/domain"
	"newsdigest/internal/logging"
	"newsdigest/internal/metrics"
)

func main() {
	job := flag.String("job", "all", "job to run: pipeline | send | all | loop")
	digest := flag.String("digest", "", "digest to send (lowbank or general); empty sends every digest")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.Enabled {
		go startMonitoringServer(cfg.Monitoring.Port)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := run(ctx, application, *job, *digest); err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("run failed", "job", *job, "error", err)
		os.Exit(1)
	}
	metrics.Global.SetLastRun()
}

func run(ctx context.Context, application *app.Application, job, digest string) error {
	switch job {
	case "pipeline":
		return application.RunPipeline(ctx)
	case "send":
		return send(ctx, application, digest)
	case "all":
		if err := application.RunPipeline(ctx); err != nil {
			return err
		}
		return send(ctx, application, digest)
	case "loop":
		return application.RunLoop(ctx)
	default:
		flag.Usage()
		os.Exit(2)
		return nil
	}
}

func send(ctx context.Context, application *app.Application, digest string) error {
	if digest == "" {
		_, err := application.SendAll(ctx)
		return err
	}
	_, err := application.SendDigest(ctx, domain.DigestType(digest))
	return err
}

func startMonitoringServer(port string) {
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	log.Printf("starting monitoring server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Printf("monitoring server error: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Global.GetStats())
}
