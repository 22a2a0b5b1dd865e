package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"tenant-telemetry/internal/access"
	"tenant-telemetry/internal/auth"
	"tenant-telemetry/internal/diaglog"
	"tenant-telemetry/internal/events"
	"tenant-telemetry/internal/hub"
	"tenant-telemetry/internal/ingest"
	"tenant-telemetry/internal/metrics"
	"tenant-telemetry/internal/status"
	"tenant-telemetry/internal/store"
	"tenant-telemetry/internal/store/memory"
	"tenant-telemetry/internal/store/postgres"
	"tenant-telemetry/internal/store/valkey"
)

const serviceName = "telemetry-server"

func main() {
	// 1. Konfigurace
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("Neplatná konfigurace", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. MQTT klient musí vzniknout DŘÍV než logger, protože logujeme i do MQTT.
	// Připojujeme se ale až na konci, kdy je router sestavený; subscribe běží
	// po každém (re)connectu.
	var (
		router *ingest.Router
		logger *slog.Logger
	)
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		for _, topic := range router.Topics() {
			token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
				msgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				router.Handle(msgCtx, msg.Topic(), msg.Payload())
			})
			if token.Wait() && token.Error() != nil {
				logger.Error("Subscribe selhal", "topic", topic, "error", token.Error())
				continue
			}
			logger.Info("Poslouchám na topicu", "topic", topic)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("Spojení s MQTT ztraceno", "error", err)
	})
	client := mqtt.NewClient(opts)

	// 3. Logger: stdout + MQTT (logs/telemetry-server)
	multi := io.MultiWriter(os.Stdout, NewMqttLogWriter(client, serviceName))
	logger = slog.New(slog.NewJSONHandler(multi, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("Startuji telemetrický server", "store", cfg.Store, "port", cfg.HTTPPort, "prefix", cfg.TopicPrefix)

	thresholds := status.DefaultThresholds
	if cfg.ThresholdsFile != "" {
		if thresholds, err = status.LoadThresholds(cfg.ThresholdsFile); err != nil {
			logger.Error("Kritická chyba: nelze načíst prahy", "file", cfg.ThresholdsFile, "error", err)
			os.Exit(1)
		}
	}

	// 4. Valkey: cache posledních měření a session uživatelů
	rdb, err := valkey.Connect(ctx, cfg.ValkeyAddr)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k Valkey", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// 5. Úložiště
	stores, closeStores, err := openStores(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Error("Kritická chyba: Nelze otevřít úložiště", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	// Registr senzorů čteme z cache. První načtení je blokující.
	sensorCache := store.NewSensorCache(stores.Sensors, logger)
	if err := sensorCache.Load(ctx); err != nil {
		logger.Error("Kritická chyba: Nepodařilo se načíst registr senzorů", "error", err)
		os.Exit(1)
	}
	go sensorCache.StartAutoRefresh(ctx, cfg.MetadataRefresh)
	stores.Sensors = sensorCache

	// 6. Jádro: resolver, bus, ingest, hub
	m := metrics.New()
	resolver := access.NewResolver(stores.Sensors, stores.Access, logger)

	bus := events.NewBus(cfg.EventBuffer)
	bus.OnDrop(m.EventsDropped.Inc)

	diag, err := diaglog.New(cfg.DiagLogDir, logger)
	if err != nil {
		logger.Error("Kritická chyba", "error", err)
		os.Exit(1)
	}

	ingestor := ingest.NewIngestor(stores.Readings, sensorCache, bus, diag, m, logger)
	router = ingest.NewRouter(cfg.TopicPrefix, ingestor, logger)

	h := hub.New(hub.Config{BroadcastInterval: cfg.BroadcastInterval, Thresholds: thresholds}, resolver, stores, m, logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		h.Run(ctx, bus.Events())
	}()

	// 7. MQTT: teprve teď, kdy je kam zprávy posílat
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("Fatal MQTT Error", "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)
	logger.Info("Připojeno k MQTT", "broker", cfg.MQTTBroker)

	// 8. HTTP: REST, websocket, metriky, health
	api := NewAPIHandler(h, resolver, stores, auth.NewSessionAuthenticator(rdb, cfg.SessionPrefix), logger)
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           CorsMiddleware(buildMux(api, h, m, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server naslouchá", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server spadl", "error", err)
			stop()
		}
	}()

	// 9. Graceful shutdown: čekáme na SIGINT/SIGTERM
	<-ctx.Done()
	logger.Info("Ukončuji službu...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown selhal", "error", err)
	}
	<-hubDone
}

// buildMux sestaví router: REST API, /ws, /metrics a /health.
func buildMux(api *APIHandler, h *hub.Hub, m *metrics.Metrics, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	mux.Handle("GET /ws", hub.NewWSHandler(h, api.auth, logger))
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		api.writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": h.Registry().Len(),
		})
	})
	return mux
}

// openStores otevře zvolené úložiště a obalí měření cache ve Valkey.
func openStores(ctx context.Context, cfg Config, rdb *redis.Client, logger *slog.Logger) (store.Stores, func(), error) {
	var (
		stores    store.Stores
		closeFunc = func() {}
	)

	switch cfg.Store {
	case "memory":
		logger.Warn("Běžím s paměťovým úložištěm, data se po restartu ztratí")
		stores, _ = memory.Stores()
	default:
		// pgxpool spravuje sadu spojení do DB, je thread-safe.
		pool, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return store.Stores{}, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return store.Stores{}, nil, err
		}
		stores = postgres.New(pool)
		closeFunc = pool.Close
	}

	stores.Readings = valkey.NewLatestCache(stores.Readings, rdb, valkey.DefaultTTL, logger)
	return stores, closeFunc, nil
}
