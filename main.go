package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalyapp "machinery-cloud/internal/anomalies/application"
	anomalies "machinery-cloud/internal/anomalies/domain"
	anomalymem "machinery-cloud/internal/anomalies/infrastructure/memory"
	anomalypg "machinery-cloud/internal/anomalies/infrastructure/postgres"
	anomalyhttp "machinery-cloud/internal/anomalies/interfaces/http"
	anomalynotify "machinery-cloud/internal/anomalies/notify"
	"machinery-cloud/internal/auth"
	"machinery-cloud/internal/eventing"
	machineapp "machinery-cloud/internal/machines/application"
	machines "machinery-cloud/internal/machines/domain"
	machinemem "machinery-cloud/internal/machines/infrastructure/memory"
	machinepg "machinery-cloud/internal/machines/infrastructure/postgres"
	machinehttp "machinery-cloud/internal/machines/interfaces/http"
	maintapp "machinery-cloud/internal/maintenance/application"
	maintenance "machinery-cloud/internal/maintenance/domain"
	maintmem "machinery-cloud/internal/maintenance/infrastructure/memory"
	maintpg "machinery-cloud/internal/maintenance/infrastructure/postgres"
	mainthttp "machinery-cloud/internal/maintenance/interfaces/http"
	"machinery-cloud/internal/observability/metrics"
	optapp "machinery-cloud/internal/optimization/application"
	optimization "machinery-cloud/internal/optimization/domain"
	opthttp "machinery-cloud/internal/optimization/interfaces/http"
	"machinery-cloud/internal/query"
	queryhttp "machinery-cloud/internal/query/interfaces/http"
	readingapp "machinery-cloud/internal/readings/application"
	readings "machinery-cloud/internal/readings/domain"
	readingmem "machinery-cloud/internal/readings/infrastructure/memory"
	readingpg "machinery-cloud/internal/readings/infrastructure/postgres"
	readinghttp "machinery-cloud/internal/readings/interfaces/http"
	"machinery-cloud/internal/thresholds"
	thresholdhttp "machinery-cloud/internal/thresholds/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var db *sql.DB
	var machineRepo machines.Repository
	var store readings.Store
	var anomalyRepo anomalies.Repository
	var scheduleRepo maintenance.Repository

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		machineRepo = machinepg.NewMachineRepository(db)
		store = readingpg.NewReadingStore(db)
		anomalyRepo = anomalypg.NewAnomalyRepository(db)
		scheduleRepo = maintpg.NewScheduleRepository(db)
		logger.Printf("storage: postgres")
	} else {
		machineRepo = machinemem.NewMachineRepository()
		store = readingmem.NewReadingStore()
		anomalyRepo = anomalymem.NewAnomalyRepository()
		scheduleRepo = maintmem.NewScheduleRepository()
		logger.Printf("storage: in-memory")
	}

	metrics.Init(db, logger)

	thresholdCfg := thresholds.DefaultConfig()
	if cfg.ThresholdConfigPath != "" {
		loaded, err := thresholds.LoadConfig(cfg.ThresholdConfigPath)
		if err != nil {
			logger.Fatalf("threshold config error: %v", err)
		}
		thresholdCfg = loaded
	}
	registry, err := thresholds.NewRegistry(thresholdCfg)
	if err != nil {
		logger.Fatalf("threshold registry error: %v", err)
	}

	agg := analytics.NewAggregator(analytics.WithMinSamples(thresholdCfg.Defaults.MinSamples))
	bus := eventing.NewInMemoryBus()
	snapshotGate := &sync.RWMutex{}

	machineService, err := machineapp.NewService(machineRepo)
	if err != nil {
		logger.Fatalf("machine service error: %v", err)
	}

	classifier, err := anomalyapp.NewClassifier(anomalyRepo, registry, anomalyapp.WithBus(bus))
	if err != nil {
		logger.Fatalf("classifier error: %v", err)
	}

	if cfg.AnomalyWebhookURL != "" {
		channel, err := anomalynotify.NewWebhookChannel(cfg.AnomalyWebhookURL, anomalynotify.WithAuthToken(cfg.AnomalyWebhookToken))
		if err != nil {
			logger.Fatalf("anomaly webhook error: %v", err)
		}
		tpl, err := anomalynotify.NewTemplate(cfg.AnomalyNotifyTemplate)
		if err != nil {
			logger.Fatalf("anomaly template error: %v", err)
		}
		notifier, err := anomalynotify.NewNotifier(machineRepo, channel, tpl, logger, anomalynotify.WithRequestTimeout(cfg.AnomalyNotifyTimeout))
		if err != nil {
			logger.Fatalf("anomaly notifier error: %v", err)
		}
		notifier.Register(bus)
	}

	ingestService, err := readingapp.NewIngestService(machineRepo, store, agg, snapshotGate, logger,
		readingapp.WithBus(bus),
		readingapp.WithClassifier(classifier),
	)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	estimator, err := maintapp.NewEstimator(machineRepo, agg, registry, scheduleRepo, logger, maintapp.WithBus(bus))
	if err != nil {
		logger.Fatalf("estimator error: %v", err)
	}
	scheduler := maintapp.NewScheduler(estimator, cfg.RULInterval, logger)
	go scheduler.Start(context.Background())

	catalog, err := optimization.DefaultCatalog()
	if err != nil {
		logger.Fatalf("scenario catalog error: %v", err)
	}
	if cfg.ScenarioCatalogPath != "" {
		catalog, err = optimization.LoadCatalog(cfg.ScenarioCatalogPath)
		if err != nil {
			logger.Fatalf("scenario catalog error: %v", err)
		}
	}
	ranker, err := optapp.NewRanker(machineRepo, catalog, registry)
	if err != nil {
		logger.Fatalf("ranker error: %v", err)
	}

	queryService, err := query.NewService(machineRepo, anomalyRepo, scheduleRepo, agg, snapshotGate)
	if err != nil {
		logger.Fatalf("query service error: %v", err)
	}

	readingHandler, err := readinghttp.NewHandler(ingestService)
	if err != nil {
		logger.Fatalf("reading handler error: %v", err)
	}
	machineHandler, err := machinehttp.NewHandler(machineService, agg, estimator)
	if err != nil {
		logger.Fatalf("machine handler error: %v", err)
	}
	anomalyHandler, err := anomalyhttp.NewHandler(classifier)
	if err != nil {
		logger.Fatalf("anomaly handler error: %v", err)
	}
	maintenanceHandler, err := mainthttp.NewHandler(estimator)
	if err != nil {
		logger.Fatalf("maintenance handler error: %v", err)
	}
	optimizationHandler, err := opthttp.NewHandler(ranker)
	if err != nil {
		logger.Fatalf("optimization handler error: %v", err)
	}
	thresholdHandler, err := thresholdhttp.NewHandler(registry)
	if err != nil {
		logger.Fatalf("threshold handler error: %v", err)
	}
	queryHandler, err := queryhttp.NewHandler(queryService)
	if err != nil {
		logger.Fatalf("query handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", readingHandler)
	mux.Handle("/api/v1/readings/batch", readingHandler)
	mux.Handle("/api/v1/machines", machineHandler)
	mux.Handle("/api/v1/machines/", machineHandler)
	mux.Handle("/api/v1/anomalies", anomalyHandler)
	mux.Handle("/api/v1/anomalies/", anomalyHandler)
	mux.Handle("/api/v1/maintenance/", maintenanceHandler)
	mux.Handle("/api/v1/optimization/", optimizationHandler)
	mux.Handle("/api/v1/config/thresholds", thresholdHandler)
	mux.Handle("/api/v1/analytics/", queryHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("auth disabled: no jwt secret configured")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(handler, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL           string
	HTTPAddr              string
	ThresholdConfigPath   string
	ScenarioCatalogPath   string
	RULInterval           time.Duration
	AnomalyWebhookURL     string
	AnomalyWebhookToken   string
	AnomalyNotifyTemplate string
	AnomalyNotifyTimeout  time.Duration
	JWTSecret             string
}

func loadConfig() config {
	return config{
		DatabaseURL:           getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:              getenvDefault("HTTP_ADDR", ":8080"),
		ThresholdConfigPath:   getenvDefault("THRESHOLD_CONFIG_PATH", ""),
		ScenarioCatalogPath:   getenvDefault("SCENARIO_CATALOG_PATH", ""),
		RULInterval:           getenvDuration("RUL_RECOMPUTE_INTERVAL", 15*time.Minute),
		AnomalyWebhookURL:     getenvDefault("ANOMALY_WEBHOOK_URL", ""),
		AnomalyWebhookToken:   getenvDefault("ANOMALY_WEBHOOK_TOKEN", ""),
		AnomalyNotifyTemplate: getenvDefault("ANOMALY_NOTIFY_TEMPLATE", ""),
		AnomalyNotifyTimeout:  getenvDuration("ANOMALY_NOTIFY_TIMEOUT", 5*time.Second),
		JWTSecret:             getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
