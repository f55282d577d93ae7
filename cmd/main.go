package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"synxronquota/internal/auth"
	"synxronquota/internal/config"
	"synxronquota/internal/handler"
	"synxronquota/internal/notify"
	"synxronquota/internal/repository"
	"synxronquota/internal/service"
	"synxronquota/internal/service/s3"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.GetDSN()

	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли база данных
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Подключение к сервису аутентификации
	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}

	authClient := auth.NewClient(authConfig)
	auth.InitClient(authClient)

	// Уведомления: webhook, если настроен, иначе лог
	var notifier notify.Notifier = notify.NewLogNotifier()
	if notifyConfig, err := notify.NewConfig(".notify.env"); err == nil && notifyConfig.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(notifyConfig)
	} else if err != nil {
		log.Printf("Notify config not loaded, using log notifier: %v", err)
	}

	// Инициализация репозиториев
	recordRepo := repository.NewQuotaRecordRepository(db)
	policyRepo := repository.NewQuotaPolicyRepository(db)
	requestRepo := repository.NewQuotaRequestRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	// Провайдеры измерения по зонам. Зона home считается по базе ресурсов;
	// зона s3 подключается, только если есть конфигурация бакета.
	providers := map[string]service.UsageMeasurementProvider{
		appConfig.Quota.DefaultZone: service.NewResourceMeasurementProvider(resourceRepo),
	}

	if s3Config, err := s3.NewConfig(".s3.env"); err == nil {
		s3Client, err := s3.NewClient(s3Config)
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		providers["s3"] = s3Client
	} else {
		log.Printf("S3 config not loaded, zone s3 will not be reconciled: %v", err)
	}

	// Инициализация сервисов
	quotaService := service.NewQuotaService(recordRepo, policyRepo, authClient, appConfig.Quota.DefaultZone)
	stateMachine := service.NewGraceStateMachine(recordRepo, authClient, notifier)
	reconciler := service.NewReconcilerService(recordRepo, policyRepo, authClient, providers, stateMachine)
	requestService := service.NewQuotaRequestService(requestRepo, recordRepo, notifier)
	transferService := service.NewQuotaHolderService(resourceRepo, quotaService)

	// Инициализация хендлеров
	quotaHandler := handler.NewQuotaHandler(
		quotaService,
		requestService,
		transferService,
		reconciler,
		policyRepo,
		appConfig.Quota.DefaultZone,
		appConfig.Quota.DefaultAllocationValue,
		appConfig.Quota.DefaultAllocationUnit,
	)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("Incoming request: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/quota", func(r chi.Router) {
			r.Get("/status", quotaHandler.GetQuotaStatus)
			r.Post("/records", quotaHandler.CreateQuotaRecord)
			r.Post("/validate", quotaHandler.ValidateQuota)
			r.Put("/limit", quotaHandler.UpdateQuotaLimit)
			r.Get("/policy", quotaHandler.GetPolicy)
			r.Put("/policy", quotaHandler.UpdatePolicy)
			r.Post("/reconcile", quotaHandler.Reconcile)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", quotaHandler.SubmitRequest)
				r.Get("/", quotaHandler.ListRequests)
				r.Post("/{id}/approve", quotaHandler.ApproveRequest)
				r.Post("/{id}/deny", quotaHandler.DenyRequest)
				r.Post("/{id}/revoke", quotaHandler.RevokeRequest)
			})
		})

		r.Post("/resources/{uuid}/quota-holder", quotaHandler.TransferQuotaHolder)
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Встроенный тикер сверки; внешний планировщик может дергать
	// POST /v1/quota/reconcile на своем расписании
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	go reconciler.Run(reconcileCtx, appConfig.Quota.ReconcileInterval)

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down server...")
	stopReconcile()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
