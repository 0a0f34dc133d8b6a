// Command adminserver runs the admin HTTP API and the pipeline scheduler
// as one long-lived process: one scheduler sweeps all enabled pipelines on
// a single global interval and the admin UI manages catalogue state over
// REST.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/originpress/inkwell/internal/app"
	"github.com/originpress/inkwell/internal/metrics"
)

func main() {
	addr := flag.String("addr", "", "admin API listen address (defaults to config or :8080)")
	dbPath := flag.String("db", "", "path to the catalogue database (in-memory store when empty)")
	tokensFlag := flag.String("api-tokens", "", "comma-separated bearer tokens for admin API authentication")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the Prometheus /metrics endpoint")
	flag.Parse()

	runtimeCfg := app.RuntimeConfig{CataloguePath: *dbPath}
	if trimmed := strings.TrimSpace(*addr); trimmed != "" {
		runtimeCfg.AdminAddr = trimmed
	}
	if tokens := splitTokens(*tokensFlag); len(tokens) > 0 {
		runtimeCfg.AdminTokens = tokens
	}

	application, err := app.New(app.Stores{}, app.WithRuntimeConfig(runtimeCfg))
	if err != nil {
		log.Fatalf("initialize application: %v", err)
	}
	defer application.Store.Close()

	rootCtx := context.Background()
	if err := application.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	metricsServer := startMetricsServer(*metricsAddr)

	log.Printf("inkwell admin API and scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

// startMetricsServer mounts the Prometheus handler on its own port, kept
// separate from the admin API so scraping never competes with the
// bearer-token middleware guarding pipeline management.
func startMetricsServer(addr string) *http.Server {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()
	return srv
}

func splitTokens(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	trimmed := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return trimmed
}
