package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"careledger/internal/audit"
	"careledger/internal/auth"
	billingapp "careledger/internal/billing/application"
	billingrepo "careledger/internal/billing/infrastructure/postgres"
	billinghttp "careledger/internal/billing/interfaces/http"
	"careledger/internal/clients"
	"careledger/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	auditRepo := audit.NewRepository(db)

	clientsRepo := clients.NewRepository(db)
	clientsHandler, err := clients.NewHandler(clientsRepo, auditRepo, logger)
	if err != nil {
		logger.Fatalf("clients handler error: %v", err)
	}

	serviceRepo := billingrepo.NewServiceRepository(db)
	statementRepo := billingrepo.NewStatementRepository(db)

	monitor, err := billingapp.NewBudgetMonitor(serviceRepo, statementRepo, auditRepo, logger)
	if err != nil {
		logger.Fatalf("budget monitor error: %v", err)
	}
	catalog, err := billingapp.NewCatalogService(serviceRepo, statementRepo, clientsRepo, auditRepo, logger)
	if err != nil {
		logger.Fatalf("catalog service error: %v", err)
	}
	ledger, err := billingapp.NewLedgerService(serviceRepo, statementRepo, monitor, auditRepo, logger)
	if err != nil {
		logger.Fatalf("ledger service error: %v", err)
	}
	importer, err := billingapp.NewImportService(serviceRepo, statementRepo, monitor, logger)
	if err != nil {
		logger.Fatalf("import service error: %v", err)
	}
	billingHandler, err := billinghttp.NewHandler(catalog, ledger, importer, clientsRepo, logger)
	if err != nil {
		logger.Fatalf("billing handler error: %v", err)
	}

	backfill, err := billingapp.NewBackfill(serviceRepo, statementRepo, logger)
	if err != nil {
		logger.Fatalf("backfill error: %v", err)
	}
	if result, err := backfill.Run(context.Background()); err != nil {
		logger.Printf("startup backfill error: %v", err)
	} else {
		logger.Printf("startup backfill: %d services, %d entries", result.ServicesScanned, result.EntriesInserted)
	}

	billingCfg, err := billingapp.LoadConfig()
	if err != nil {
		logger.Fatalf("billing config error: %v", err)
	}
	if billingCfg.Schedule.Enabled {
		scheduler := billingapp.NewScheduler(backfill, billingCfg.Schedule.DailyAt, logger)
		go scheduler.Start(context.Background())
	}

	sources := []auth.Source{}
	staticSource, err := auth.NewStaticSourceFromJSON(cfg.SuperAdmins)
	if err != nil {
		logger.Fatalf("superadmin config error: %v", err)
	}
	if staticSource.Len() > 0 {
		sources = append(sources, staticSource)
	}
	sources = append(sources, auth.NewDBSource(db))
	resolver := auth.NewResolver(sources...)

	loginHandler := auth.NewLoginHandler(resolver, []byte(cfg.JWTSecret), cfg.TokenTTL, auditRepo)
	profileHandler := auth.NewProfileHandler(resolver)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/api/login"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/login", loginHandler)
	mux.Handle("/api/profile", profileHandler)
	mux.Handle("/api/clients", clientsHandler)
	mux.Handle("/api/clients/", clientsHandler)
	mux.Handle("/api/councils", clientsHandler)
	mux.Handle("/api/councils/", clientsHandler)
	mux.Handle("/api/services", billingHandler)
	mux.Handle("/api/services/", billingHandler)
	mux.Handle("/api/notifications", audit.NewListHandler(auditRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
	TokenTTL    time.Duration
	SuperAdmins string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		TokenTTL:    getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		SuperAdmins: getenvDefault("SUPERADMINS", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
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
