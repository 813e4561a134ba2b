package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/cache"
	"departureboard/pkg/clock"
	"departureboard/pkg/departures"
	"departureboard/pkg/logging"
	"departureboard/pkg/loki"
	"departureboard/pkg/metrics"
	"departureboard/pkg/pipeline"
	"departureboard/pkg/profiling"
	"departureboard/pkg/resrobot"
	"departureboard/pkg/stations"
	"departureboard/pkg/tracing"
)

func main() {
	// Command line flags
	var (
		dryRun          = flag.Bool("dry-run", false, "Print the board to stdout instead of sending it to Loki")
		apiKey          = flag.String("api-key", getEnv("RESROBOT_API_KEY", ""), "ResRobot API key (required unless --fixture is set)")
		stationsFile    = flag.String("stations", getEnv("BOARD_STATIONS_FILE", "stations.yaml"), "Station and line configuration (YAML)")
		fixtureDir      = flag.String("fixture", getEnv("BOARD_FIXTURE_DIR", ""), "Read recorded payloads from this directory instead of the API")
		format          = flag.String("format", getEnv("RESROBOT_FORMAT", "json"), "Upstream payload format: json or xml")
		duration        = flag.Int("duration", getEnvInt("RESROBOT_DURATION", resrobot.DefaultDuration), "Minutes of departures requested per station")
		interval        = flag.String("interval", getEnv("BOARD_INTERVAL", "30s"), "Refresh interval")
		minTime         = flag.Int("min-time-threshold", getEnvInt("BOARD_MIN_TIME_THRESHOLD", departures.DefaultMinTimeThreshold), "Hide departures leaving within this many minutes")
		pinnedLine      = flag.String("pinned-line", getEnv("BOARD_PINNED_LINE", departures.DefaultPinnedLine), "Line always shown first (empty disables)")
		lastServiceLine = flag.String("last-service-line", getEnv("BOARD_LAST_SERVICE_LINE", departures.DefaultLastServiceLine), "Line whose final trip raises the warning")
		lastServiceMins = flag.Int("last-service-threshold", getEnvInt("BOARD_LAST_SERVICE_THRESHOLD", departures.DefaultLastServiceThreshold), "Minutes before the final trip to show the warning")
		httpAddr        = flag.String("http-addr", getEnv("BOARD_HTTP_ADDR", ":8080"), "Board API listen address (empty disables)")
		lokiURL         = flag.String("loki-url", getEnv("BOARD_LOKI_URL", ""), "Grafana Loki URL (empty disables)")
		lokiUser        = flag.String("loki-user", getEnv("BOARD_LOKI_USER", ""), "Loki username (for Grafana Cloud authentication)")
		lokiPassword    = flag.String("loki-password", getEnv("BOARD_LOKI_PASSWORD", ""), "Loki password/token (for Grafana Cloud authentication)")
		redisAddr       = flag.String("redis-addr", getEnv("BOARD_REDIS_ADDR", ""), "Redis address for the upstream cache (empty disables)")
		redisPassword   = flag.String("redis-password", getEnv("BOARD_REDIS_PASSWORD", ""), "Redis password")
		cacheTTL        = flag.String("cache-ttl", getEnv("BOARD_CACHE_TTL", "20s"), "Upstream payload cache TTL")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Stockholm Departure Board\n\n")
		fmt.Fprintf(os.Stderr, "Polls the ResRobot departure board API for the configured stations,\n")
		fmt.Fprintf(os.Stderr, "builds one ordered board and serves it over HTTP and websocket.\n")
		fmt.Fprintf(os.Stderr, "Boards can also be shipped to Grafana Loki.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  RESROBOT_API_KEY             - ResRobot API key\n")
		fmt.Fprintf(os.Stderr, "  RESROBOT_FORMAT              - json or xml (default: json)\n")
		fmt.Fprintf(os.Stderr, "  RESROBOT_DURATION            - Minutes of departures per request (default: 60)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_STATIONS_FILE          - Station YAML (default: stations.yaml)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_FIXTURE_DIR            - Recorded payload directory\n")
		fmt.Fprintf(os.Stderr, "  BOARD_INTERVAL               - Refresh interval (default: 30s)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_MIN_TIME_THRESHOLD     - Default hide threshold in minutes (default: 5)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_PINNED_LINE            - Pinned line (default: 30)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_LAST_SERVICE_LINE      - Last service line (default: 11)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_LAST_SERVICE_THRESHOLD - Last service warning window (default: 30)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_HTTP_ADDR              - Listen address (default: :8080)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_LOKI_URL               - Loki URL\n")
		fmt.Fprintf(os.Stderr, "  BOARD_LOKI_USER              - Loki username (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_LOKI_PASSWORD          - Loki password/token (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  BOARD_REDIS_ADDR             - Redis address\n")
		fmt.Fprintf(os.Stderr, "  BOARD_CACHE_TTL              - Cache TTL (default: 20s)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Dry run against recorded payloads (no API key needed)\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run --fixture=./testdata/fixtures --stations=stations.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Serve the board with a Redis cache\n")
		fmt.Fprintf(os.Stderr, "  %s --api-key=YOUR_API_KEY --redis-addr=localhost:6379\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Also ship boards to Grafana Cloud Loki\n")
		fmt.Fprintf(os.Stderr, "  %s --api-key=YOUR_API_KEY \\\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    --loki-url=https://logs-prod-eu-west-0.grafana.net \\\n")
		fmt.Fprintf(os.Stderr, "    --loki-user=123456 --loki-password=your_token\n\n")
	}

	flag.Parse()

	logging.InitLogging()

	// Validate required parameters
	if *apiKey == "" && *fixtureDir == "" {
		fmt.Fprintf(os.Stderr, "Error: API key is required. Use --api-key or set RESROBOT_API_KEY environment variable.\n\n")
		flag.Usage()
		os.Exit(1)
	}

	intervalDuration, err := time.ParseDuration(*interval)
	if err != nil {
		log.Fatalf("Invalid interval format: %v", err)
	}

	cacheTTLDuration, err := time.ParseDuration(*cacheTTL)
	if err != nil {
		log.Fatalf("Invalid cache TTL format: %v", err)
	}

	payloadFormat, err := resrobot.ParseFormat(*format)
	if err != nil {
		log.Fatalf("Invalid format: %v", err)
	}

	stationList, err := stations.Load(*stationsFile)
	if err != nil {
		log.Fatalf("Failed to load stations: %v", err)
	}

	resolver, err := clock.NewStockholm(nil)
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	// Initialize tracing
	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	// Initialize metrics
	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer shutdownMetrics()

	// Initialize profiling
	shutdownProfiling, err := profiling.InitProfiling()
	if err != nil {
		log.Fatalf("Failed to initialize profiling: %v", err)
	}
	defer shutdownProfiling()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetcher pipeline.Fetcher
	if *fixtureDir != "" {
		fetcher = resrobot.NewFixtureSource(*fixtureDir, payloadFormat)
	} else {
		opts := []resrobot.Option{
			resrobot.WithFormat(payloadFormat),
			resrobot.WithDuration(*duration),
		}
		if *redisAddr != "" {
			redisCache, err := cache.NewRedisCache(ctx, cache.Options{
				Addr:     *redisAddr,
				Password: *redisPassword,
			}, slog.Default())
			if err != nil {
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
			defer redisCache.Close()
			opts = append(opts, resrobot.WithCache(redisCache, cacheTTLDuration))
		}
		fetcher = resrobot.NewClient(*apiKey, opts...)
	}

	boardServer := board.NewServer(slog.Default())
	var remoteSinks []pipeline.Sink
	if *lokiURL != "" {
		remoteSinks = append(remoteSinks, loki.NewClient(*lokiURL, *lokiUser, *lokiPassword))
	}

	options := departures.DefaultOptions(resolver)
	options.DefaultMinTimeThreshold = *minTime
	options.PinnedLine = *pinnedLine

	config := pipeline.Config{
		Stations:             stationList,
		Fetcher:              fetcher,
		Options:              options,
		LastServiceLines:     stations.LastServiceLines(stationList, *lastServiceLine),
		LastServiceThreshold: *lastServiceMins,
		Interval:             intervalDuration,
		Sinks:                []pipeline.Sink{boardServer},
		RemoteSinks:          remoteSinks,
		DryRun:               *dryRun,
	}

	pipelineInstance, err := pipeline.New(config)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	// Print startup information
	if *fixtureDir != "" {
		log.Printf("Starting departure board with recorded payloads from %s", *fixtureDir)
	} else {
		log.Printf("Starting departure board against ResRobot (%s)", payloadFormat)
	}
	if *dryRun {
		log.Printf("DRY RUN: boards will be printed to stdout, not sent to Loki")
	} else if *lokiURL != "" {
		log.Printf("Boards will be sent to Loki at: %s", *lokiURL)
	}
	for _, s := range stationList {
		log.Printf("Monitoring %s (%s): %d lines", s.Name, s.ID, len(s.Departures))
	}
	log.Printf("Last service lines: %v", config.LastServiceLines)
	log.Printf("Refresh interval: %v (%s time)", intervalDuration, resolver.Location())

	go boardServer.Run(ctx)

	var httpServer *http.Server
	if *httpAddr != "" {
		httpServer = &http.Server{
			Addr:              *httpAddr,
			Handler:           boardServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Board API listening on %s", *httpAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start pipeline in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- pipelineInstance.Run(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		// Wait a bit for graceful shutdown
		select {
		case <-time.After(5 * time.Second):
			log.Println("Shutdown timeout, forcing exit")
		case <-errChan:
			log.Println("Pipeline stopped")
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Pipeline error: %v", err)
		}
		log.Println("Pipeline stopped")
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	log.Println("Departure board shutdown complete")
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
